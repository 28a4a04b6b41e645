package http

import (
	"errors"
	"net/http"

	"expense-predictor/internal/core"
	"expense-predictor/internal/log"
	"expense-predictor/internal/services"
)

type predictResponse struct {
	Category string `json:"category"`
	Recorded bool   `json:"recorded"`
	Ref      string `json:"ref,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

type transactionJSON struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
}

type categoryTotalJSON struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Count    int    `json:"count"`
}

type transactionsResponse struct {
	Transactions []transactionJSON   `json:"transactions"`
	Totals       []categoryTotalJSON `json:"totals"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodHead); resp != nil {
		resp.Write(w)
		return
	}
	data := struct {
		Title      string
		Categories []string
	}{
		Title:      "Expense Category Predictor",
		Categories: s.categories,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err.Error())
	}
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := log.FromContext(ctx)

	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		logger.WarnContext(ctx, "Rejected request body", log.FieldError, err.Error(), log.FieldErrorType, log.ErrorTypeValidation)
		if errors.Is(err, ErrBodyTooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "request body too large", "body").Write(w)
			return
		}
		BadRequestError("invalid request body", "body").Write(w)
		return
	}

	description, _, err := parser.Field("description")
	if err != nil {
		UnprocessableEntityError("description must be text", "description").Write(w)
		return
	}
	if description == "" {
		BadRequestError("description is required", "description").Write(w)
		return
	}
	rawAmount, ok, err := parser.Field("amount")
	if err != nil {
		UnprocessableEntityError("amount must be a number", "amount").Write(w)
		return
	}
	if !ok || rawAmount == "" {
		BadRequestError("amount is required", "amount").Write(w)
		return
	}
	amount, err := core.ParseAmount(rawAmount)
	if err != nil {
		UnprocessableEntityError("amount must be a number", "amount").Write(w)
		return
	}

	res, err := s.predictor.Predict(ctx, services.PredictRequest{Description: description, Amount: amount})
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			BadRequestError(verr.Err.Error(), verr.Field).Write(w)
			return
		}
		log.NewStructuredLogger(logger).LogError(ctx, "Prediction failed", err,
			log.ErrorTypeInference, log.OpPredict, nil)
		InternalServerError("classification failed").Write(w)
		return
	}

	log.NewStructuredLogger(logger).LogPrediction(ctx, description, amount.String(), res.Category, res.Ref)
	NewJSONResponse().Body(predictResponse{
		Category: res.Category,
		Recorded: res.Recorded,
		Ref:      res.Ref,
		Warning:  res.Warning,
	}).Write(w)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	if s.lister == nil {
		ErrorResponse(http.StatusNotImplemented, "ledger backend cannot list transactions", "").Write(w)
		return
	}

	txs, err := s.lister.List(r.Context())
	if err != nil {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Ledger list failed", err,
			log.ErrorTypePersistence, log.OpList, nil)
		InternalServerError("could not read ledger").Write(w)
		return
	}

	out := transactionsResponse{
		Transactions: make([]transactionJSON, 0, len(txs)),
		Totals:       []categoryTotalJSON{},
	}
	for _, tx := range txs {
		out.Transactions = append(out.Transactions, transactionJSON{
			Date:        tx.Date.String(),
			Description: tx.Description,
			Amount:      tx.Amount.String(),
			Category:    tx.Category,
		})
	}
	for _, t := range core.Summarize(txs) {
		out.Totals = append(out.Totals, categoryTotalJSON{Category: t.Name, Amount: t.Amount.String(), Count: t.Count})
	}
	NewJSONResponse().Body(out).Write(w)
}
