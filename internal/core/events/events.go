package events

import (
	"context"
	"sync"
	"time"

	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/google/uuid"
)

const (
	Exchange = "ledger_events"

	RoutingKeyCompleted = "ledger.transaction.completed"
	RoutingKeyReversed  = "ledger.transaction.reversed"
)

// TransactionEvent is published after a ledger unit of work commits.
type TransactionEvent struct {
	TransactionID         uuid.UUID                `json:"transaction_id"`
	WalletID              uuid.UUID                `json:"wallet_id"`
	Type                  models.TransactionType   `json:"type"`
	Status                models.TransactionStatus `json:"status"`
	Amount                string                   `json:"amount"`
	Currency              string                   `json:"currency"`
	OriginalTransactionID *uuid.UUID               `json:"original_transaction_id,omitempty"`
	OccurredAt            time.Time                `json:"occurred_at"`
}

func NewTransactionEvent(tx *models.Transaction) TransactionEvent {
	return TransactionEvent{
		TransactionID:         tx.ID,
		WalletID:              tx.WalletID,
		Type:                  tx.Type,
		Status:                tx.Status,
		Amount:                tx.Amount.Amount.String(),
		Currency:              tx.Amount.Currency.Code,
		OriginalTransactionID: tx.OriginalTransactionID,
		OccurredAt:            tx.CreatedAt,
	}
}

// RoutingKey picks the routing key from the event status.
func (e TransactionEvent) RoutingKey() string {
	if e.Status == models.TransactionStatusReversed {
		return RoutingKeyReversed
	}
	return RoutingKeyCompleted
}

type Publisher interface {
	PublishTransaction(ctx context.Context, event TransactionEvent) error
	Close()
}

// Noop drops every event.
type Noop struct{}

func (Noop) PublishTransaction(context.Context, TransactionEvent) error { return nil }
func (Noop) Close()                                                   {}

// Recorder keeps published events in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []TransactionEvent
	Err    error
}

func (r *Recorder) PublishTransaction(_ context.Context, event TransactionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() {}

func (r *Recorder) Events() []TransactionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TransactionEvent(nil), r.events...)
}
