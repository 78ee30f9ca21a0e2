package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletStatus is the wallet lifecycle state. Transitions only move forward:
// ACTIVE -> SUSPENDED -> CLOSED, and CLOSED is terminal.
type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "ACTIVE"
	WalletStatusSuspended WalletStatus = "SUSPENDED"
	WalletStatusClosed    WalletStatus = "CLOSED"
)

func (s WalletStatus) IsValid() bool {
	switch s {
	case WalletStatusActive, WalletStatusSuspended, WalletStatusClosed:
		return true
	}
	return false
}

func (s WalletStatus) rank() int {
	switch s {
	case WalletStatusActive:
		return 0
	case WalletStatusSuspended:
		return 1
	case WalletStatusClosed:
		return 2
	}
	return -1
}

// Wallet holds a single-currency balance. Its balance changes only through
// TopUp, Debit and Credit; the currency is fixed at creation.
type Wallet struct {
	ID        uuid.UUID    `json:"id"`
	Balance   Money        `json:"balance"`
	Status    WalletStatus `json:"status"`
	Version   int64        `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewWallet creates an active wallet with a zero balance.
func NewWallet(currency Currency, now time.Time) *Wallet {
	return &Wallet{
		ID:        uuid.New(),
		Balance:   Zero(currency),
		Status:    WalletStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (w *Wallet) Currency() Currency {
	return w.Balance.Currency
}

func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

// TopUp increases the balance of an active wallet. There is no upper bound.
func (w *Wallet) TopUp(amount decimal.Decimal) error {
	if !w.IsActive() {
		return fmt.Errorf("%w: wallet %s is %s", ErrWalletNotActive, w.ID, w.Status)
	}
	return w.apply(amount, false)
}

// Debit takes funds from an active wallet; the balance may reach zero but never go below it.
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if !w.IsActive() {
		return fmt.Errorf("%w: wallet %s is %s", ErrWalletNotActive, w.ID, w.Status)
	}
	return w.apply(amount, true)
}

// Credit returns funds to a wallet. Suspended wallets are still credited,
// closed ones are not.
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if w.Status == WalletStatusClosed {
		return fmt.Errorf("%w: wallet %s is closed", ErrWalletNotActive, w.ID)
	}
	return w.apply(amount, false)
}

func (w *Wallet) apply(amount decimal.Decimal, debit bool) error {
	delta, err := NewPositiveMoney(amount, w.Currency())
	if err != nil {
		return err
	}

	var next Money
	if debit {
		cmp, err := w.Balance.Cmp(delta)
		if err != nil {
			return err
		}
		if cmp < 0 {
			return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, w.Balance, delta)
		}
		next, err = w.Balance.Sub(delta)
		if err != nil {
			return err
		}
	} else {
		next, err = w.Balance.Add(delta)
		if err != nil {
			return err
		}
	}

	w.Balance = next
	return nil
}

func (w *Wallet) Suspend() error {
	return w.transition(WalletStatusSuspended)
}

func (w *Wallet) Close() error {
	return w.transition(WalletStatusClosed)
}

func (w *Wallet) transition(to WalletStatus) error {
	if w.Status == WalletStatusClosed || to.rank() <= w.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, w.Status, to)
	}
	w.Status = to
	return nil
}

// Touch records a modification time. It never moves UpdatedAt backwards.
func (w *Wallet) Touch(now time.Time) {
	if now.After(w.UpdatedAt) {
		w.UpdatedAt = now
	}
}
