package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expense-predictor/internal/amqp"
	"expense-predictor/internal/cache"
	"expense-predictor/internal/core"
	"expense-predictor/internal/log"
	"expense-predictor/internal/sheets"
)

// NotRecordedWarning is returned to callers when the category was predicted
// but the ledger write failed.
const NotRecordedWarning = "category predicted but the transaction could not be recorded"

type (
	// Categorizer predicts a category for a description.
	Categorizer interface {
		Predict(ctx context.Context, description string) (string, error)
	}

	// RecordedPublisher announces transactions appended to the ledger.
	RecordedPublisher interface {
		PublishTransactionRecorded(ctx context.Context, msg *amqp.TransactionRecordedMessage) error
	}
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *ValidationError) Unwrap() error { return e.Err }

// PredictRequest is a validated-by-type prediction request.
type PredictRequest struct {
	Description string
	Amount      decimal.Decimal
}

// PredictResult always carries the category. Recorded is false, with a
// Warning, when the ledger write failed.
type PredictResult struct {
	Category    string
	Recorded    bool
	Ref         string
	Warning     string
	Transaction core.Transaction
}

// PredictionService runs validate, predict, append and applies the
// persistence failure policy.
type PredictionService struct {
	categorizer Categorizer
	ledger      sheets.TransactionWriter
	cache       *cache.PredictionCache
	publisher   RecordedPublisher
	location    *time.Location
	now         func() time.Time
	logger      *log.Logger
}

type Option func(*PredictionService)

// WithCache memoizes predictions by description.
func WithCache(c *cache.PredictionCache) Option {
	return func(s *PredictionService) { s.cache = c }
}

// WithPublisher publishes a message for every recorded transaction.
func WithPublisher(p RecordedPublisher) Option {
	return func(s *PredictionService) { s.publisher = p }
}

// WithLocation sets the timezone used to date ledger rows.
func WithLocation(loc *time.Location) Option {
	return func(s *PredictionService) { s.location = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *PredictionService) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *PredictionService) { s.logger = l }
}

func NewPredictionService(categorizer Categorizer, ledger sheets.TransactionWriter, opts ...Option) *PredictionService {
	s := &PredictionService{
		categorizer: categorizer,
		ledger:      ledger,
		location:    time.Local,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Wrap(slog.Default(), log.ComponentPredict)
	}
	return s
}

// Classify predicts a category without recording anything.
func (s *PredictionService) Classify(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", &ValidationError{Field: "description", Err: core.ErrEmptyDescription}
	}
	if s.cache != nil {
		if category, ok := s.cache.Get(description); ok {
			return category, nil
		}
	}
	category, err := s.categorizer.Predict(ctx, description)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		s.cache.Set(description, category)
	}
	return category, nil
}

// Predict classifies the description and appends the transaction to the
// ledger. Validation and inference failures are returned as errors; a
// ledger failure is not, the result carries a warning instead.
func (s *PredictionService) Predict(ctx context.Context, req PredictRequest) (PredictResult, error) {
	category, err := s.Classify(ctx, req.Description)
	if err != nil {
		return PredictResult{}, err
	}

	tx := core.Transaction{
		Date:        core.DateOf(s.now().In(s.location)),
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		Category:    category,
	}
	result := PredictResult{Category: category, Transaction: tx}

	ref, err := s.ledger.Append(ctx, tx)
	if err != nil {
		errorType := log.ErrorTypePersistence
		if !errors.Is(err, sheets.ErrLedgerIO) {
			errorType = log.ErrorTypeInternal
		}
		s.logger.ErrorContext(ctx, "Ledger append failed",
			log.FieldError, err.Error(),
			log.FieldErrorType, errorType,
			log.FieldOperation, log.OpAppend,
			log.FieldCategory, category)
		result.Warning = NotRecordedWarning
		return result, nil
	}
	result.Recorded = true
	result.Ref = ref

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionRecorded(ctx, amqp.NewTransactionRecordedMessage(ref, tx)); err != nil {
			// The row is recorded; the sync worker's reconciliation picks it up.
			s.logger.WarnContext(ctx, "Failed to publish transaction recorded message",
				log.FieldError, err.Error(),
				log.FieldLedgerRef, ref)
		}
	}
	return result, nil
}
