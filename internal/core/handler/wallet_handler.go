package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/Nzyazin/walletledger/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type WalletHandler struct {
	usecase usecase.LedgerUsecase
	log     logger.Logger
}

type CreateWalletRequest struct {
	Currency string `json:"currency"`
}

type WalletResponse struct {
	ID        uuid.UUID           `json:"id"`
	Balance   string              `json:"balance"`
	Currency  string              `json:"currency"`
	Status    models.WalletStatus `json:"status"`
	Version   int64               `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type BalanceResponse struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Balance  string    `json:"balance"`
	Currency string    `json:"currency"`
}

func NewWalletHandler(usecase usecase.LedgerUsecase, log logger.Logger) *WalletHandler {
	return &WalletHandler{usecase: usecase, log: log}
}

func (h *WalletHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/wallets", h.CreateWallet).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/wallets/{id}", h.GetWallet).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/wallets/{id}/balance", h.GetBalance).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/wallets/{id}/transactions", h.ListTransactions).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/wallets/{id}/suspend", h.SuspendWallet).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/wallets/{id}/close", h.CloseWallet).Methods(http.MethodPost)
}

func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log.Warn("Failed to decode request body", logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	wallet, err := h.usecase.CreateWallet(r.Context(), req.Currency)
	if err != nil {
		handleError(w, h.log, "Failed to create wallet", err, logger.StringField("currency", req.Currency))
		return
	}

	h.log.Info("Wallet created",
		logger.StringField("wallet_id", wallet.ID.String()),
		logger.StringField("currency", wallet.Currency().Code),
	)
	respondWithJSON(w, http.StatusCreated, toWalletResponse(wallet))
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	wallet, err := h.usecase.GetWallet(r.Context(), id)
	if err != nil {
		handleError(w, h.log, "Failed to get wallet", err, logger.StringField("wallet_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, toWalletResponse(wallet))
}

func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	balance, err := h.usecase.GetBalance(r.Context(), id)
	if err != nil {
		handleError(w, h.log, "Failed to get balance", err, logger.StringField("wallet_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, BalanceResponse{
		WalletID: id,
		Balance:  balance.Amount.StringFixedBank(2),
		Currency: balance.Currency.Code,
	})
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	limit, offset, validationErr := parsePage(r)
	if validationErr != nil {
		h.log.Warn(validationErr.Message, validationErr.Fields...)
		respondWithError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	txs, err := h.usecase.ListTransactions(r.Context(), id, limit, offset)
	if err != nil {
		handleError(w, h.log, "Failed to list transactions", err, logger.StringField("wallet_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, txs)
}

func (h *WalletHandler) SuspendWallet(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "suspend", h.usecase.SuspendWallet)
}

func (h *WalletHandler) CloseWallet(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "close", h.usecase.CloseWallet)
}

func (h *WalletHandler) changeStatus(w http.ResponseWriter, r *http.Request, action string,
	change func(ctx context.Context, id uuid.UUID) (*models.Wallet, error)) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	wallet, err := change(r.Context(), id)
	if err != nil {
		handleError(w, h.log, "Failed to "+action+" wallet", err, logger.StringField("wallet_id", id.String()))
		return
	}

	h.log.Info("Wallet status changed",
		logger.StringField("wallet_id", id.String()),
		logger.StringField("status", string(wallet.Status)),
	)
	respondWithJSON(w, http.StatusOK, toWalletResponse(wallet))
}

func (h *WalletHandler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		h.log.Warn("Invalid id in path", logger.StringField(name, raw))
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func parsePage(r *http.Request) (limit, offset int, verr *ValidationError) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, &ValidationError{
				Message: fmt.Sprintf("invalid %s", p.name),
				Fields:  []logger.Field{logger.StringField(p.name, raw)},
			}
		}
		*p.dst = v
	}
	return limit, offset, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func toWalletResponse(w *models.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID,
		Balance:   w.Balance.Amount.StringFixedBank(2),
		Currency:  w.Currency().Code,
		Status:    w.Status,
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
