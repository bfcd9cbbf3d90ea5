package app

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/transfa/ledger-service/internal/domain"
)

// loggingTransferService decorates a TransferService with logging
type loggingTransferService struct {
	next   TransferService
	logger log.Logger
}

// NewLoggingTransferService returns a TransferService that logs every transfer.
func NewLoggingTransferService(logger log.Logger, s TransferService) TransferService {
	return &loggingTransferService{
		next:   s,
		logger: logger,
	}
}

func (s *loggingTransferService) Transfer(ctx context.Context, req domain.TransferRequest) (txn domain.Transaction, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "transfer",
			"source", req.SourceAccountNumber,
			"destination", req.DestinationAccountNumber,
			"amount", req.Amount,
			"transaction_id", txn.ID,
			"commission", txn.Commission,
			"received", txn.ReceivedAmount,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Transfer(ctx, req)
}
