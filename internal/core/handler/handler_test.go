package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nzyazin/walletledger/internal/core/handler"
	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/Nzyazin/walletledger/internal/core/repository/memory"
	"github.com/Nzyazin/walletledger/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t      *testing.T
	router *mux.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := logger.NewNop()
	uc := usecase.NewLedgerUsecase(memory.NewStore(), log, usecase.Config{
		MaxRetries:       3,
		RetryBackoff:     time.Millisecond,
		OperationTimeout: time.Second,
	})

	router := mux.NewRouter()
	handler.NewWalletHandler(uc, log).RegisterRoutes(router)
	handler.NewTransactionHandler(uc, log).RegisterRoutes(router)
	return &testAPI{t: t, router: router}
}

func (a *testAPI) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) createWallet(currency string) handler.WalletResponse {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/v1/wallets", handler.CreateWalletRequest{Currency: currency})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[handler.WalletResponse](a.t, rec)
}

func (a *testAPI) operate(kind string, walletID uuid.UUID, amount string, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.do(http.MethodPost, "/api/v1/transactions/"+kind,
		handler.OperationRequest{WalletID: walletID, Amount: amount, Description: kind}, headers...)
}

func TestCreateAndGetWallet(t *testing.T) {
	api := newTestAPI(t)

	created := api.createWallet("usd")
	assert.Equal(t, "USD", created.Currency)
	assert.Equal(t, "0.00", created.Balance)
	assert.Equal(t, models.WalletStatusActive, created.Status)

	rec := api.do(http.MethodGet, "/api/v1/wallets/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[handler.WalletResponse](t, rec).ID)

	rec = api.do(http.MethodPost, "/api/v1/wallets", handler.CreateWalletRequest{Currency: "dollars"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/wallets", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWalletErrors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/v1/wallets/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[handler.ErrorResponse](t, rec).Error, "wallet not found")

	rec = api.do(http.MethodGet, "/api/v1/wallets/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopUpPaymentAndBalance(t *testing.T) {
	api := newTestAPI(t)
	w := api.createWallet("USD")

	rec := api.operate("topup", w.ID, "100,50")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	topUp := decode[models.TransactionSummary](t, rec)
	assert.Equal(t, models.TransactionTypeTopUp, topUp.Type)
	assert.Equal(t, "100.5", topUp.Amount)

	rec = api.operate("payment", w.ID, "0.50")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/v1/wallets/"+w.ID.String()+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[handler.BalanceResponse](t, rec)
	assert.Equal(t, "100.00", balance.Balance)
	assert.Equal(t, "USD", balance.Currency)

	rec = api.operate("payment", w.ID, "1000")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[handler.ErrorResponse](t, rec).Error, "insufficient funds")
}

func TestOperationValidation(t *testing.T) {
	api := newTestAPI(t)
	w := api.createWallet("USD")

	cases := []struct {
		name   string
		amount string
		wallet uuid.UUID
	}{
		{"zero amount", "0", w.ID},
		{"negative amount", "-5", w.ID},
		{"three fraction digits", "1.005", w.ID},
		{"garbage", "ten", w.ID},
		{"missing wallet", "10", uuid.Nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.operate("topup", tc.wallet, tc.amount)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := api.operate("topup", uuid.New(), "10")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefundFlow(t *testing.T) {
	api := newTestAPI(t)
	w := api.createWallet("EUR")
	require.Equal(t, http.StatusOK, api.operate("topup", w.ID, "100").Code)

	payment := decode[models.TransactionSummary](t, api.operate("payment", w.ID, "30"))

	rec := api.do(http.MethodPost, "/api/v1/transactions/refund/"+payment.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refund := decode[models.TransactionSummary](t, rec)
	assert.Equal(t, models.TransactionTypeRefund, refund.Type)
	require.NotNil(t, refund.OriginalTransactionID)
	assert.Equal(t, payment.ID, *refund.OriginalTransactionID)

	rec = api.do(http.MethodGet, "/api/v1/transactions/"+payment.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TransactionStatusReversed, decode[models.TransactionSummary](t, rec).Status)

	rec = api.do(http.MethodPost, "/api/v1/transactions/refund/"+payment.ID.String(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/transactions/refund/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/wallets/"+w.ID.String()+"/transactions?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]models.TransactionSummary](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, refund.ID, history[0].ID)
}

func TestListTransactionsRejectsBadPaging(t *testing.T) {
	api := newTestAPI(t)
	w := api.createWallet("USD")

	for _, q := range []string{"limit=-1", "offset=x"} {
		rec := api.do(http.MethodGet, "/api/v1/wallets/"+w.ID.String()+"/transactions?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestStatusChanges(t *testing.T) {
	api := newTestAPI(t)
	w := api.createWallet("USD")

	rec := api.do(http.MethodPost, "/api/v1/wallets/"+w.ID.String()+"/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WalletStatusSuspended, decode[handler.WalletResponse](t, rec).Status)

	assert.Equal(t, http.StatusUnprocessableEntity, api.operate("topup", w.ID, "5").Code)

	rec = api.do(http.MethodPost, "/api/v1/wallets/"+w.ID.String()+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/wallets/"+w.ID.String()+"/suspend", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIdempotencyKeyHeader(t *testing.T) {
	api := newTestAPI(t)
	w := api.createWallet("USD")

	first := decode[models.TransactionSummary](t, api.operate("topup", w.ID, "10", "Idempotency-Key", "abc"))
	second := decode[models.TransactionSummary](t, api.operate("topup", w.ID, "10", "Idempotency-Key", "abc"))
	assert.Equal(t, first.ID, second.ID)

	rec := api.operate("payment", w.ID, "1", "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusConflict, rec.Code)

	balance := decode[handler.BalanceResponse](t, api.do(http.MethodGet, "/api/v1/wallets/"+w.ID.String()+"/balance", nil))
	assert.Equal(t, "10.00", balance.Balance)
}
