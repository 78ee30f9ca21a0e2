package handler

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/Nzyazin/walletledger/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const idempotencyKeyHeader = "Idempotency-Key"

type TransactionHandler struct {
	usecase usecase.LedgerUsecase
	log     logger.Logger
}

type OperationRequest struct {
	WalletID    uuid.UUID `json:"walletId"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
}

var amountRegexp = regexp.MustCompile(`^\s*\d{1,9}([.,]\d{1,2})?\s*$`)

func NewTransactionHandler(usecase usecase.LedgerUsecase, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{usecase: usecase, log: log}
}

func (h *TransactionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/transactions/topup", h.TopUp).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/transactions/payment", h.Payment).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/transactions/refund/{transactionId}", h.Refund).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/transactions/{transactionId}", h.GetTransaction).Methods(http.MethodGet)
}

func (h *TransactionHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	op, ok := h.decodeOperation(w, r)
	if !ok {
		return
	}

	summary, err := h.usecase.TopUp(r.Context(), usecase.TopUpRequest{
		WalletID:       op.WalletID,
		Amount:         op.amount,
		Description:    op.Description,
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		handleError(w, h.log, "Top-up failed", err, op.fields()...)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *TransactionHandler) Payment(w http.ResponseWriter, r *http.Request) {
	op, ok := h.decodeOperation(w, r)
	if !ok {
		return
	}

	summary, err := h.usecase.Payment(r.Context(), usecase.PaymentRequest{
		WalletID:       op.WalletID,
		Amount:         op.amount,
		Description:    op.Description,
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		handleError(w, h.log, "Payment failed", err, op.fields()...)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *TransactionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	summary, err := h.usecase.Refund(r.Context(), usecase.RefundRequest{
		TransactionID:  id,
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		handleError(w, h.log, "Refund failed", err, logger.StringField("transaction_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	summary, err := h.usecase.GetTransaction(r.Context(), id)
	if err != nil {
		handleError(w, h.log, "Failed to get transaction", err, logger.StringField("transaction_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

type operation struct {
	OperationRequest
	amount decimal.Decimal
}

func (op *operation) fields() []logger.Field {
	return []logger.Field{
		logger.StringField("wallet_id", op.WalletID.String()),
		logger.StringField("amount", op.amount.String()),
	}
}

func (h *TransactionHandler) decodeOperation(w http.ResponseWriter, r *http.Request) (*operation, bool) {
	var op operation
	if err := decodeJSON(w, r, &op.OperationRequest); err != nil {
		h.log.Warn("Failed to decode request body", logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return nil, false
	}

	if validationErr := validateOperation(&op.OperationRequest); validationErr != nil {
		h.log.Warn(validationErr.Message, validationErr.Fields...)
		respondWithError(w, http.StatusBadRequest, validationErr.Message)
		return nil, false
	}

	amount, err := parseAmount(op.Amount)
	if err != nil {
		h.log.Warn("Invalid amount", logger.StringField("amount", op.Amount), logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	op.amount = amount
	return &op, true
}

func (h *TransactionHandler) transactionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["transactionId"]
	id, err := uuid.Parse(raw)
	if err != nil {
		h.log.Warn("Invalid transaction id", logger.StringField("transaction_id", raw))
		respondWithError(w, http.StatusBadRequest, "invalid transaction id")
		return uuid.Nil, false
	}
	return id, true
}

// validateOperation выполняет базовую валидацию полей операции
func validateOperation(op *OperationRequest) *ValidationError {
	if op.WalletID == uuid.Nil {
		return &ValidationError{
			Message: "Wallet ID is required",
			Fields:  []logger.Field{logger.StringField("wallet_id", "")},
		}
	}
	if len(op.Description) > 255 {
		return &ValidationError{
			Message: "Description is too long",
			Fields:  []logger.Field{logger.IntField("description_length", len(op.Description))},
		}
	}
	return nil
}

// parseAmount обрабатывает и валидирует сумму операции
func parseAmount(amountStr string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.ReplaceAll(amountStr, " ", ""), ",", ".")

	if !amountRegexp.MatchString(cleaned) {
		return decimal.Zero, fmt.Errorf("invalid amount format: %s", cleaned)
	}

	amount, err := models.ParseAmount(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not parse amount: %v", err)
	}

	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}

	return amount, nil
}
