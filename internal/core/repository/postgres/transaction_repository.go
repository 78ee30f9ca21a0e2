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

const transactionColumns = `id, wallet_id, amount, currency_code, currency_symbol, type, status,
	description, original_transaction_id, version, created_at`

type transactionRow struct {
	ID                    uuid.UUID       `db:"id"`
	WalletID              uuid.UUID       `db:"wallet_id"`
	Amount                decimal.Decimal `db:"amount"`
	CurrencyCode          string          `db:"currency_code"`
	CurrencySymbol        string          `db:"currency_symbol"`
	Type                  string          `db:"type"`
	Status                string          `db:"status"`
	Description           string          `db:"description"`
	OriginalTransactionID uuid.NullUUID   `db:"original_transaction_id"`
	Version               int64           `db:"version"`
	CreatedAt             time.Time       `db:"created_at"`
}

func (r transactionRow) toModel() *models.Transaction {
	tx := &models.Transaction{
		ID:       r.ID,
		WalletID: r.WalletID,
		Amount: models.NewMoney(r.Amount, models.Currency{
			Code:   r.CurrencyCode,
			Symbol: r.CurrencySymbol,
		}),
		Type:        models.TransactionType(r.Type),
		Status:      models.TransactionStatus(r.Status),
		Description: r.Description,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.OriginalTransactionID.Valid {
		id := r.OriginalTransactionID.UUID
		tx.OriginalTransactionID = &id
	}
	return tx
}

type postgresTransactionRepo struct {
	q   sqlx.ExtContext
	log logger.Logger
}

func (r *postgresTransactionRepo) Add(ctx context.Context, tx *models.Transaction) error {
	const query = `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)`

	var original uuid.NullUUID
	if tx.OriginalTransactionID != nil {
		original = uuid.NullUUID{UUID: *tx.OriginalTransactionID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		tx.ID,
		tx.WalletID,
		tx.Amount.Amount,
		tx.Amount.Currency.Code,
		tx.Amount.Currency.Symbol,
		string(tx.Type),
		string(tx.Status),
		tx.Description,
		original,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create transaction: %w", classifyError(err))
	}

	tx.Version = 1
	return nil
}

func (r *postgresTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var row transactionRow
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrTransactionNotFound, id)
		}
		return nil, fmt.Errorf("error getting transaction: %w", classifyError(err))
	}
	return row.toModel(), nil
}

// Update only persists the status; every other column is immutable.
func (r *postgresTransactionRepo) Update(ctx context.Context, tx *models.Transaction) error {
	const query = `UPDATE transactions SET status = $1, version = version + 1
		WHERE id = $2 AND version = $3`

	res, err := r.q.ExecContext(ctx, query, string(tx.Status), tx.ID, tx.Version)
	if err != nil {
		return fmt.Errorf("update transaction: %w", classifyError(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, tx.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: transaction %s", models.ErrConcurrencyConflict, tx.ID)
	}

	tx.Version++
	return nil
}

func (r *postgresTransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	var lim interface{}
	if limit > 0 {
		lim = limit
	}

	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, walletID, lim, offset); err != nil {
		return nil, fmt.Errorf("list transactions: %w", classifyError(err))
	}

	result := make([]*models.Transaction, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}
