package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Nzyazin/walletledger/internal/core/idempotency"
	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/Nzyazin/walletledger/internal/core/usecase"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationError struct {
	Message string
	Fields  []logger.Field
}

// errorStatuses is checked in order; the first match wins.
var errorStatuses = []struct {
	err    error
	status int
}{
	{models.ErrWalletNotFound, http.StatusNotFound},
	{models.ErrTransactionNotFound, http.StatusNotFound},
	{models.ErrInvalidAmount, http.StatusBadRequest},
	{models.ErrCurrencyMismatch, http.StatusBadRequest},
	{models.ErrInvalidCurrency, http.StatusBadRequest},
	{usecase.ErrInvalidRequest, http.StatusBadRequest},
	{models.ErrWalletNotActive, http.StatusUnprocessableEntity},
	{models.ErrInvalidStatusTransition, http.StatusUnprocessableEntity},
	{models.ErrInvalidRefundTarget, http.StatusUnprocessableEntity},
	{models.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{models.ErrConcurrencyConflict, http.StatusConflict},
	{idempotency.ErrKeyConflict, http.StatusConflict},
}

func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// handleError logs err and writes the mapped status. Internal errors are not
// echoed to the client.
func handleError(w http.ResponseWriter, log logger.Logger, msg string, err error, fields ...logger.Field) {
	status := statusFor(err)
	fields = append(fields, logger.ErrorField("error", err), logger.IntField("status", status))

	if status == http.StatusInternalServerError {
		log.Error(msg, fields...)
		respondWithError(w, status, "Internal Server Error")
		return
	}
	log.Warn(msg, fields...)
	respondWithError(w, status, err.Error())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal Server Error"}`)) // Fallback response
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
