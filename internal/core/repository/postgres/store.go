package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/Nzyazin/walletledger/internal/core/repository"
	"github.com/jmoiron/sqlx"
)

// Store is the PostgreSQL repository.Store. Writes are guarded by optimistic
// version checks, so READ COMMITTED is enough for correctness.
type Store struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewStore(db *sqlx.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Wallets() repository.WalletRepository {
	return &postgresWalletRepo{q: s.db, log: s.log}
}

func (s *Store) Transactions() repository.TransactionRepository {
	return &postgresTransactionRepo{q: s.db, log: s.log}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	// database/sql rolls back a transaction whose context is cancelled, even
	// mid-commit. Statements below still observe ctx; the commit does not.
	tx, err := s.db.BeginTxx(context.WithoutCancel(ctx), &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.log.Error("Error beginning transaction", logger.ErrorField("error", err))
		return fmt.Errorf("error beginning transaction: %w", classifyError(err))
	}

	var isCommitted bool
	defer func() {
		if isCommitted {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.log.Error("Transaction rollback failed", logger.ErrorField("error", rbErr))
			err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
	}()

	if err = fn(ctx, &txStore{tx: tx, log: s.log}); err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		s.log.Error("Error committing transaction", logger.ErrorField("error", err))
		return fmt.Errorf("commit failed: %w", classifyError(err))
	}

	isCommitted = true
	return nil
}

type txStore struct {
	tx  *sqlx.Tx
	log logger.Logger
}

func (s *txStore) Wallets() repository.WalletRepository {
	return &postgresWalletRepo{q: s.tx, log: s.log}
}

func (s *txStore) Transactions() repository.TransactionRepository {
	return &postgresTransactionRepo{q: s.tx, log: s.log}
}

// RunInTx joins the surrounding transaction.
func (s *txStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return fn(ctx, s)
}
