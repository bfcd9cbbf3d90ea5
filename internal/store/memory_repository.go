package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
)

// MemoryRepository is an in-process Repository used for local runs without
// PostgreSQL and by the service tests. Each account has its own mutex; a
// transfer holds the mutexes of its accounts, acquired lowest id first, until
// its staged writes are applied.
type MemoryRepository struct {
	mu           sync.RWMutex
	nextID       int64
	accounts     map[int64]domain.Account
	accountLocks map[int64]*sync.Mutex
	accountTypes map[int64]domain.AccountType
	currencies   map[string]domain.Currency
	rates        map[string]map[time.Time]domain.ExchangeRate
	transactions []domain.Transaction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[int64]domain.Account),
		accountLocks: make(map[int64]*sync.Mutex),
		accountTypes: make(map[int64]domain.AccountType),
		currencies:   make(map[string]domain.Currency),
		rates:        make(map[string]map[time.Time]domain.ExchangeRate),
	}
}

// AddCurrency registers a currency and returns it with its id assigned.
// MinorUnits is stored as given; zero is a valid scale (JPY).
func (m *MemoryRepository) AddCurrency(currency domain.Currency) domain.Currency {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	currency.ID = m.nextID
	currency.Code = domain.NormalizeCurrencyCode(currency.Code)
	m.currencies[currency.Code] = currency
	return currency
}

// AddAccountType registers an account type and returns it with its id assigned.
func (m *MemoryRepository) AddAccountType(accountType domain.AccountType) domain.AccountType {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	accountType.ID = m.nextID
	m.accountTypes[accountType.ID] = accountType
	return accountType
}

// AddAccount registers an account and returns it with its id assigned.
func (m *MemoryRepository) AddAccount(account domain.Account) domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	account.ID = m.nextID
	account.CurrencyCode = domain.NormalizeCurrencyCode(account.CurrencyCode)
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	m.accounts[account.ID] = account
	m.accountLocks[account.ID] = &sync.Mutex{}
	return account
}

// TransactionCount returns the number of committed transactions.
func (m *MemoryRepository) TransactionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transactions)
}

func (m *MemoryRepository) FindAccountByNumber(ctx context.Context, number string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, account := range m.accounts {
		if account.Number == number {
			return account, nil
		}
	}
	return domain.Account{}, ErrAccountNotFound
}

func (m *MemoryRepository) FindAccountByID(ctx context.Context, id int64) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[id]
	if !ok {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (m *MemoryRepository) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accounts := make([]domain.Account, 0)
	for _, account := range m.accounts {
		if account.OwnerID == ownerID {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (m *MemoryRepository) FindAccountTypeByID(ctx context.Context, id int64) (domain.AccountType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accountType, ok := m.accountTypes[id]
	if !ok {
		return domain.AccountType{}, ErrAccountTypeNotFound
	}
	return accountType, nil
}

func (m *MemoryRepository) FindCurrencyByCode(ctx context.Context, code string) (domain.Currency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	currency, ok := m.currencies[domain.NormalizeCurrencyCode(code)]
	if !ok {
		return domain.Currency{}, ErrCurrencyNotFound
	}
	return currency, nil
}

func (m *MemoryRepository) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	currencies := make([]domain.Currency, 0, len(m.currencies))
	for _, currency := range m.currencies {
		currencies = append(currencies, currency)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i].Code < currencies[j].Code })
	return currencies, nil
}

func (m *MemoryRepository) FindRateAtOrBefore(ctx context.Context, code string, date time.Time) (domain.ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	day := domain.DateOf(date)
	var (
		best  domain.ExchangeRate
		found bool
	)
	for rateDate, rate := range m.rates[domain.NormalizeCurrencyCode(code)] {
		if rateDate.After(day) {
			continue
		}
		if !found || rateDate.After(best.Date) {
			best, found = rate, true
		}
	}
	if !found {
		return domain.ExchangeRate{}, ErrRateNotFound
	}
	return best, nil
}

func (m *MemoryRepository) FindLatestRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	m.mu.RLock()
	var latest time.Time
	for _, byDate := range m.rates {
		for rateDate := range byDate {
			if rateDate.After(latest) {
				latest = rateDate
			}
		}
	}
	m.mu.RUnlock()
	if latest.IsZero() {
		return []domain.ExchangeRate{}, nil
	}
	return m.FindRatesAtDate(ctx, latest)
}

func (m *MemoryRepository) FindRatesAtDate(ctx context.Context, date time.Time) ([]domain.ExchangeRate, error) {
	return m.FindRatesInRange(ctx, date, date)
}

func (m *MemoryRepository) FindRatesInRange(ctx context.Context, start, end time.Time) ([]domain.ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	from, to := domain.DateOf(start), domain.DateOf(end)
	rates := make([]domain.ExchangeRate, 0)
	for _, byDate := range m.rates {
		for rateDate, rate := range byDate {
			if rateDate.Before(from) || rateDate.After(to) {
				continue
			}
			rates = append(rates, rate)
		}
	}
	sort.Slice(rates, func(i, j int) bool {
		if !rates[i].Date.Equal(rates[j].Date) {
			return rates[i].Date.Before(rates[j].Date)
		}
		return rates[i].CurrencyCode < rates[j].CurrencyCode
	})
	return rates, nil
}

func (m *MemoryRepository) InsertRates(ctx context.Context, rates []domain.ExchangeRate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, rate := range rates {
		code := domain.NormalizeCurrencyCode(rate.CurrencyCode)
		if _, ok := m.currencies[code]; !ok {
			continue
		}
		day := domain.DateOf(rate.Date)
		byDate, ok := m.rates[code]
		if !ok {
			byDate = make(map[time.Time]domain.ExchangeRate)
			m.rates[code] = byDate
		}
		if _, exists := byDate[day]; exists {
			continue
		}
		byDate[day] = domain.ExchangeRate{CurrencyCode: code, Date: day, Rate: rate.Rate}
		inserted++
	}
	return inserted, nil
}

func (m *MemoryRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, txn := range m.transactions {
		if txn.ID == id {
			return txn, nil
		}
	}
	return domain.Transaction{}, ErrTransactionNotFound
}

func (m *MemoryRepository) ListTransactionsByAccount(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, error) {
	return m.listTransactions(func(txn domain.Transaction) bool {
		return txn.SourceAccountID == accountID || txn.DestinationAccountID == accountID
	}, limit, offset), nil
}

func (m *MemoryRepository) ListTransactions(ctx context.Context, limit, offset int) ([]domain.Transaction, error) {
	return m.listTransactions(func(domain.Transaction) bool { return true }, limit, offset), nil
}

// listTransactions pages the matching transactions, newest first.
func (m *MemoryRepository) listTransactions(match func(domain.Transaction) bool, limit, offset int) []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]domain.Transaction, 0)
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if txn := m.transactions[i]; match(txn) {
			matched = append(matched, txn)
		}
	}
	if offset >= len(matched) {
		return []domain.Transaction{}
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

func (m *MemoryRepository) WithinTransfer(ctx context.Context, fn func(ctx context.Context, tx TransferTx) error) error {
	tx := &memoryTransferTx{
		repo:     m,
		held:     make(map[int64]*sync.Mutex),
		balances: make(map[int64]decimal.Decimal),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, balance := range tx.balances {
		account := m.accounts[id]
		account.Balance = balance
		m.accounts[id] = account
	}
	m.transactions = append(m.transactions, tx.transactions...)
	return nil
}

type memoryTransferTx struct {
	repo         *MemoryRepository
	held         map[int64]*sync.Mutex
	balances     map[int64]decimal.Decimal
	transactions []domain.Transaction
}

func (t *memoryTransferTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	ordered := uniqueSortedIDs(ids)
	for _, id := range ordered {
		if _, ok := t.held[id]; ok {
			continue
		}
		t.repo.mu.RLock()
		lock, ok := t.repo.accountLocks[id]
		t.repo.mu.RUnlock()
		if !ok {
			return nil, ErrAccountNotFound
		}
		lock.Lock()
		t.held[id] = lock
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	accounts := make(map[int64]*domain.Account, len(ordered))
	for _, id := range ordered {
		account := t.repo.accounts[id]
		if staged, ok := t.balances[id]; ok {
			account.Balance = staged
		}
		accounts[id] = &account
	}
	return accounts, nil
}

func (t *memoryTransferTx) SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if _, ok := t.held[accountID]; !ok {
		return ErrAccountNotLocked
	}
	t.balances[accountID] = balance
	return nil
}

func (t *memoryTransferTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.ID == uuid.Nil || strings.TrimSpace(txn.SourceAccountNumber) == "" {
		return ErrIncompleteTransaction
	}
	t.transactions = append(t.transactions, *txn)
	return nil
}

func (t *memoryTransferTx) release() {
	for _, lock := range t.held {
		lock.Unlock()
	}
}
