package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/Nzyazin/walletledger/internal/core/repository"
	"github.com/google/uuid"
)

// Store is a concurrency-safe in-memory repository.Store. Units of work buffer
// their writes and validate versions at commit, so concurrent writers see the
// same ErrConcurrencyConflict a database would report.
type Store struct {
	mu           sync.RWMutex
	wallets      map[uuid.UUID]models.Wallet
	transactions map[uuid.UUID]models.Transaction
	byWallet     map[uuid.UUID][]uuid.UUID
	refunds      map[uuid.UUID]uuid.UUID // original transaction -> refund
}

func NewStore() *Store {
	return &Store{
		wallets:      make(map[uuid.UUID]models.Wallet),
		transactions: make(map[uuid.UUID]models.Transaction),
		byWallet:     make(map[uuid.UUID][]uuid.UUID),
		refunds:      make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *Store) Wallets() repository.WalletRepository { return walletRepo{s: s} }

func (s *Store) Transactions() repository.TransactionRepository { return transactionRepo{s: s} }

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u := newUnit(s)
	if err := fn(ctx, u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return u.commit()
}

// single runs one write as its own unit of work.
func (s *Store) single(ctx context.Context, fn func(u *unit) error) error {
	return s.RunInTx(ctx, func(_ context.Context, tx repository.Store) error {
		return fn(tx.(*unit))
	})
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Store = (*unit)(nil)
)

type pendingWallet struct {
	wallet      models.Wallet
	baseVersion int64
	created     bool
}

type pendingTransaction struct {
	tx          models.Transaction
	baseVersion int64
	created     bool
}

// unit is one unit of work against a Store.
type unit struct {
	s            *Store
	wallets      map[uuid.UUID]*pendingWallet
	transactions map[uuid.UUID]*pendingTransaction
	order        []uuid.UUID // transaction insertion order
}

func newUnit(s *Store) *unit {
	return &unit{
		s:            s,
		wallets:      make(map[uuid.UUID]*pendingWallet),
		transactions: make(map[uuid.UUID]*pendingTransaction),
	}
}

func (u *unit) Wallets() repository.WalletRepository { return walletRepo{s: u.s, u: u} }

func (u *unit) Transactions() repository.TransactionRepository {
	return transactionRepo{s: u.s, u: u}
}

// RunInTx joins the current unit.
func (u *unit) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return fn(ctx, u)
}

type walletRepo struct {
	s *Store
	u *unit
}

func (r walletRepo) unit() *unit {
	if r.u != nil {
		return r.u
	}
	return newUnit(r.s)
}

func (r walletRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.unit().getWallet(id)
}

func (r walletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	if r.u != nil {
		return r.u.createWallet(wallet)
	}
	return r.s.single(ctx, func(u *unit) error { return u.createWallet(wallet) })
}

func (r walletRepo) Update(ctx context.Context, wallet *models.Wallet) error {
	if r.u != nil {
		return r.u.updateWallet(wallet)
	}
	return r.s.single(ctx, func(u *unit) error { return u.updateWallet(wallet) })
}

type transactionRepo struct {
	s *Store
	u *unit
}

func (r transactionRepo) unit() *unit {
	if r.u != nil {
		return r.u
	}
	return newUnit(r.s)
}

func (r transactionRepo) Add(ctx context.Context, tx *models.Transaction) error {
	if r.u != nil {
		return r.u.addTransaction(tx)
	}
	return r.s.single(ctx, func(u *unit) error { return u.addTransaction(tx) })
}

func (r transactionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.unit().getTransaction(id)
}

func (r transactionRepo) Update(ctx context.Context, tx *models.Transaction) error {
	if r.u != nil {
		return r.u.updateTransaction(tx)
	}
	return r.s.single(ctx, func(u *unit) error { return u.updateTransaction(tx) })
}

func (r transactionRepo) ListByWallet(_ context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	return r.unit().listByWallet(walletID, limit, offset), nil
}

func (u *unit) getWallet(id uuid.UUID) (*models.Wallet, error) {
	if p, ok := u.wallets[id]; ok {
		w := p.wallet
		return &w, nil
	}

	u.s.mu.RLock()
	w, ok := u.s.wallets[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrWalletNotFound, id)
	}
	return &w, nil
}

func (u *unit) createWallet(wallet *models.Wallet) error {
	if _, err := u.getWallet(wallet.ID); err == nil {
		return fmt.Errorf("wallet %s already exists", wallet.ID)
	}
	wallet.Version = 1
	u.wallets[wallet.ID] = &pendingWallet{wallet: *wallet, created: true}
	return nil
}

func (u *unit) updateWallet(wallet *models.Wallet) error {
	current, err := u.getWallet(wallet.ID)
	if err != nil {
		return err
	}
	if current.Version != wallet.Version {
		return fmt.Errorf("%w: wallet %s", models.ErrConcurrencyConflict, wallet.ID)
	}

	p, ok := u.wallets[wallet.ID]
	if !ok {
		p = &pendingWallet{baseVersion: wallet.Version}
		u.wallets[wallet.ID] = p
	}
	wallet.Version++
	p.wallet = *wallet
	return nil
}

func cloneTransaction(tx models.Transaction) *models.Transaction {
	if tx.OriginalTransactionID != nil {
		id := *tx.OriginalTransactionID
		tx.OriginalTransactionID = &id
	}
	return &tx
}

func (u *unit) getTransaction(id uuid.UUID) (*models.Transaction, error) {
	if p, ok := u.transactions[id]; ok {
		return cloneTransaction(p.tx), nil
	}

	u.s.mu.RLock()
	tx, ok := u.s.transactions[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTransactionNotFound, id)
	}
	return cloneTransaction(tx), nil
}

func (u *unit) addTransaction(tx *models.Transaction) error {
	if _, err := u.getTransaction(tx.ID); err == nil {
		return fmt.Errorf("%w: %s", models.ErrDuplicateTransaction, tx.ID)
	}
	tx.Version = 1
	u.transactions[tx.ID] = &pendingTransaction{tx: *cloneTransaction(*tx), created: true}
	u.order = append(u.order, tx.ID)
	return nil
}

func (u *unit) updateTransaction(tx *models.Transaction) error {
	current, err := u.getTransaction(tx.ID)
	if err != nil {
		return err
	}
	if current.Version != tx.Version {
		return fmt.Errorf("%w: transaction %s", models.ErrConcurrencyConflict, tx.ID)
	}

	p, ok := u.transactions[tx.ID]
	if !ok {
		p = &pendingTransaction{baseVersion: tx.Version}
		u.transactions[tx.ID] = p
	}
	tx.Version++
	p.tx = *cloneTransaction(*tx)
	return nil
}

func (u *unit) listByWallet(walletID uuid.UUID, limit, offset int) []*models.Transaction {
	u.s.mu.RLock()
	ids := append([]uuid.UUID(nil), u.s.byWallet[walletID]...)
	u.s.mu.RUnlock()

	for _, id := range u.order {
		if u.transactions[id].tx.WalletID == walletID {
			ids = append(ids, id)
		}
	}

	result := make([]*models.Transaction, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if tx, err := u.getTransaction(ids[i]); err == nil {
			result = append(result, tx)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset >= len(result) {
		return []*models.Transaction{}
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result
}

// commit validates every buffered write against the committed state and
// applies all of them, or none.
func (u *unit) commit() error {
	if len(u.wallets) == 0 && len(u.transactions) == 0 {
		return nil
	}

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for id, p := range u.wallets {
		stored, exists := u.s.wallets[id]
		switch {
		case p.created && exists:
			return fmt.Errorf("wallet %s already exists", id)
		case !p.created && !exists:
			return fmt.Errorf("%w: %s", models.ErrWalletNotFound, id)
		case !p.created && stored.Version != p.baseVersion:
			return fmt.Errorf("%w: wallet %s", models.ErrConcurrencyConflict, id)
		}
	}

	for id, p := range u.transactions {
		stored, exists := u.s.transactions[id]
		switch {
		case p.created && exists:
			return fmt.Errorf("%w: %s", models.ErrDuplicateTransaction, id)
		case !p.created && !exists:
			return fmt.Errorf("%w: %s", models.ErrTransactionNotFound, id)
		case !p.created && stored.Version != p.baseVersion:
			return fmt.Errorf("%w: transaction %s", models.ErrConcurrencyConflict, id)
		}
		if p.created && p.tx.OriginalTransactionID != nil {
			if _, refunded := u.s.refunds[*p.tx.OriginalTransactionID]; refunded {
				return fmt.Errorf("%w: %s already refunded", models.ErrInvalidRefundTarget, *p.tx.OriginalTransactionID)
			}
		}
	}

	for id, p := range u.wallets {
		u.s.wallets[id] = p.wallet
	}
	for _, id := range u.order {
		tx := u.transactions[id].tx
		u.s.byWallet[tx.WalletID] = append(u.s.byWallet[tx.WalletID], id)
		if tx.OriginalTransactionID != nil {
			u.s.refunds[*tx.OriginalTransactionID] = id
		}
	}
	for id, p := range u.transactions {
		u.s.transactions[id] = p.tx
	}
	return nil
}
