package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
)

const dateLayout = "2006-01-02"

// ratesResponse is the shape of every exchange-rate listing for a single day.
type ratesResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

type timeSeriesResponse struct {
	Base      string                                `json:"base"`
	StartDate string                                `json:"start_date"`
	EndDate   string                                `json:"end_date"`
	Rates     map[string]map[string]decimal.Decimal `json:"rates"`
}

type conversionResponse struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Result decimal.Decimal `json:"result"`
}

// LatestRatesHandler handles GET /exchange-rates/latest.
func (h *Handlers) LatestRatesHandler(w http.ResponseWriter, r *http.Request) {
	latest, err := h.rates.FindLatest(r.Context())
	if err != nil {
		if !errors.Is(err, domain.ErrExchangeRatesNotFound) {
			log.Printf("level=error component=api endpoint=latest_rates err=%v", err)
		}
		h.writeError(w, http.StatusInternalServerError, "Error while loading the latest currency rates")
		return
	}
	h.writeJSON(w, http.StatusOK, h.dayResponse(latest[0].Date, latest))
}

// HistoricalRatesHandler handles GET /exchange-rates/historical/{date}.
func (h *Handlers) HistoricalRatesHandler(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateLayout, chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Date must be in YYYY-MM-DD format")
		return
	}

	found, err := h.rates.FindAllAtDate(r.Context(), date)
	if err != nil {
		if errors.Is(err, domain.ErrExchangeRatesNotFound) {
			h.writeError(w, http.StatusNotFound, "No exchange rates found for the date")
			return
		}
		log.Printf("level=error component=api endpoint=historical_rates date=%s err=%v", date.Format(dateLayout), err)
		h.writeError(w, http.StatusInternalServerError, "Error while loading currency rates")
		return
	}
	h.writeJSON(w, http.StatusOK, h.dayResponse(date, found))
}

// TimeSeriesRatesHandler handles GET /exchange-rates/timeseries?start-date=&end-date=.
func (h *Handlers) TimeSeriesRatesHandler(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(dateLayout, r.URL.Query().Get("start-date"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "start-date must be in YYYY-MM-DD format")
		return
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("end-date"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "end-date must be in YYYY-MM-DD format")
		return
	}
	if end.Before(start) {
		h.writeError(w, http.StatusBadRequest, "end-date must not be before start-date")
		return
	}

	found, err := h.rates.FindAllInRange(r.Context(), start, end)
	if err != nil {
		if errors.Is(err, domain.ErrExchangeRatesNotFound) {
			h.writeError(w, http.StatusNotFound, "No exchange rates found for the period")
			return
		}
		log.Printf("level=error component=api endpoint=timeseries_rates err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Error while loading currency rates")
		return
	}

	byDay := make(map[string]map[string]decimal.Decimal)
	for _, rate := range found {
		day := rate.Date.Format(dateLayout)
		if byDay[day] == nil {
			byDay[day] = make(map[string]decimal.Decimal)
		}
		byDay[day][rate.CurrencyCode] = rate.Rate
	}
	h.writeJSON(w, http.StatusOK, timeSeriesResponse{
		Base:      h.baseCurrency,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Rates:     byDay,
	})
}

// ConvertHandler handles GET /exchange-rates/convert?amount=&from=&to=[&date=].
func (h *Handlers) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || amount.IsNegative() {
		h.writeError(w, http.StatusBadRequest, "amount must be a non-negative number")
		return
	}
	from := domain.NormalizeCurrencyCode(q.Get("from"))
	to := domain.NormalizeCurrencyCode(q.Get("to"))
	if from == "" || to == "" {
		h.writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	date := domain.DateOf(time.Now())
	if raw := q.Get("date"); raw != "" {
		if date, err = time.Parse(dateLayout, raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
			return
		}
	}

	result, err := h.rates.Convert(r.Context(), amount, from, to, date)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedCurrency):
			h.writeError(w, http.StatusBadRequest, "Currency is not supported")
		case errors.Is(err, domain.ErrRateNotFound):
			h.writeError(w, http.StatusNotFound, "Exchange rate is not available")
		default:
			log.Printf("level=error component=api endpoint=convert from=%s to=%s err=%v", from, to, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to convert amount")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, conversionResponse{
		From:   from,
		To:     to,
		Date:   date.Format(dateLayout),
		Amount: amount,
		Result: result,
	})
}

func (h *Handlers) dayResponse(date time.Time, found []domain.ExchangeRate) ratesResponse {
	out := make(map[string]decimal.Decimal, len(found))
	for _, rate := range found {
		out[rate.CurrencyCode] = rate.Rate
	}
	return ratesResponse{Base: h.baseCurrency, Date: date.Format(dateLayout), Rates: out}
}
