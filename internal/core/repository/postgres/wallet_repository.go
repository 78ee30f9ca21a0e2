package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type walletRow struct {
	ID             uuid.UUID       `db:"id"`
	Balance        decimal.Decimal `db:"balance"`
	CurrencyCode   string          `db:"currency_code"`
	CurrencySymbol string          `db:"currency_symbol"`
	Status         string          `db:"status"`
	Version        int64           `db:"version"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r walletRow) toModel() *models.Wallet {
	return &models.Wallet{
		ID: r.ID,
		Balance: models.NewMoney(r.Balance, models.Currency{
			Code:   r.CurrencyCode,
			Symbol: r.CurrencySymbol,
		}),
		Status:    models.WalletStatus(r.Status),
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type postgresWalletRepo struct {
	q   sqlx.ExtContext
	log logger.Logger
}

func (r *postgresWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var row walletRow
	query := `SELECT id, balance, currency_code, currency_symbol, status, version, created_at, updated_at
		FROM wallets WHERE id = $1`
	err := sqlx.GetContext(ctx, r.q, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrWalletNotFound, id)
		}
		return nil, fmt.Errorf("error getting wallet: %w", classifyError(err))
	}

	return row.toModel(), nil
}

func (r *postgresWalletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	const query = `INSERT INTO wallets
		(id, balance, currency_code, currency_symbol, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)`

	_, err := r.q.ExecContext(ctx, query,
		wallet.ID,
		wallet.Balance.Amount,
		wallet.Currency().Code,
		wallet.Currency().Symbol,
		string(wallet.Status),
		wallet.CreatedAt,
		wallet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create wallet: %w", classifyError(err))
	}

	wallet.Version = 1
	return nil
}

func (r *postgresWalletRepo) Update(ctx context.Context, wallet *models.Wallet) error {
	const query = `UPDATE wallets
		SET balance = $1, status = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5`

	res, err := r.q.ExecContext(ctx, query,
		wallet.Balance.Amount,
		string(wallet.Status),
		wallet.UpdatedAt,
		wallet.ID,
		wallet.Version,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", classifyError(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, wallet.ID); err != nil {
			return err
		}
		r.log.Warn("Stale wallet version",
			logger.StringField("wallet_id", wallet.ID.String()),
			logger.Int64Field("version", wallet.Version))
		return fmt.Errorf("%w: wallet %s", models.ErrConcurrencyConflict, wallet.ID)
	}

	wallet.Version++
	return nil
}
