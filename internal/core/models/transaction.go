package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionType определяет вид движения по кошельку
type TransactionType string

const (
	TransactionTypeTopUp   TransactionType = "TOPUP"
	TransactionTypePayment TransactionType = "PAYMENT"
	TransactionTypeRefund  TransactionType = "REFUND"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeTopUp, TransactionTypePayment, TransactionTypeRefund:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusReversed  TransactionStatus = "REVERSED"
)

// Transaction is an immutable record of one balance movement. Amount is always
// the positive magnitude, in the wallet's currency at creation time. The only
// permitted change afterwards is a payment being marked REVERSED by its refund.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	WalletID              uuid.UUID         `json:"wallet_id"`
	Amount                Money             `json:"amount"`
	Type                  TransactionType   `json:"type"`
	Status                TransactionStatus `json:"status"`
	Description           string            `json:"description,omitempty"`
	OriginalTransactionID *uuid.UUID        `json:"original_transaction_id,omitempty"`
	Version               int64             `json:"version"`
	CreatedAt             time.Time         `json:"created_at"`
}

func NewTransaction(id, walletID uuid.UUID, amount Money, txType TransactionType, description string, createdAt time.Time) (*Transaction, error) {
	if _, err := NewPositiveMoney(amount.Amount, amount.Currency); err != nil {
		return nil, err
	}
	if !txType.IsValid() {
		return nil, fmt.Errorf("unknown transaction type %q", txType)
	}
	return &Transaction{
		ID:          id,
		WalletID:    walletID,
		Amount:      amount,
		Type:        txType,
		Status:      TransactionStatusCompleted,
		Description: description,
		CreatedAt:   createdAt,
	}, nil
}

// NewRefundTransaction builds the refund record for original. It does not
// touch original; see MarkReversed.
func NewRefundTransaction(id uuid.UUID, original *Transaction, createdAt time.Time) (*Transaction, error) {
	tx, err := NewTransaction(id, original.WalletID, original.Amount, TransactionTypeRefund,
		fmt.Sprintf("refund of %s", original.ID), createdAt)
	if err != nil {
		return nil, err
	}
	originalID := original.ID
	tx.OriginalTransactionID = &originalID
	return tx, nil
}

// CanBeRefunded reports whether t is a completed payment.
func (t *Transaction) CanBeRefunded() bool {
	return t.Type == TransactionTypePayment && t.Status == TransactionStatusCompleted
}

func (t *Transaction) MarkReversed() error {
	if !t.CanBeRefunded() {
		return fmt.Errorf("%w: %s %s is %s", ErrInvalidRefundTarget, t.Type, t.ID, t.Status)
	}
	t.Status = TransactionStatusReversed
	return nil
}

// TransactionSummary is the caller-facing view of a transaction.
type TransactionSummary struct {
	ID                    uuid.UUID         `json:"id"`
	WalletID              uuid.UUID         `json:"wallet_id"`
	Amount                string            `json:"amount"`
	CurrencyCode          string            `json:"currency_code"`
	Type                  TransactionType   `json:"type"`
	Status                TransactionStatus `json:"status"`
	Description           string            `json:"description,omitempty"`
	OriginalTransactionID *uuid.UUID        `json:"original_transaction_id,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
}

func (t *Transaction) Summary() TransactionSummary {
	return TransactionSummary{
		ID:                    t.ID,
		WalletID:              t.WalletID,
		Amount:                t.Amount.Amount.String(),
		CurrencyCode:          t.Amount.Currency.Code,
		Type:                  t.Type,
		Status:                t.Status,
		Description:           t.Description,
		OriginalTransactionID: t.OriginalTransactionID,
		CreatedAt:             t.CreatedAt,
	}
}
