package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    id              UUID PRIMARY KEY,
    balance         NUMERIC(30, 8) NOT NULL CHECK (balance >= 0),
    currency_code   CHAR(3) NOT NULL,
    currency_symbol VARCHAR(5) NOT NULL DEFAULT '',
    status          VARCHAR(16) NOT NULL,
    version         BIGINT NOT NULL DEFAULT 1,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
    id                      UUID PRIMARY KEY,
    wallet_id               UUID NOT NULL REFERENCES wallets (id),
    amount                  NUMERIC(30, 8) NOT NULL CHECK (amount > 0),
    currency_code           CHAR(3) NOT NULL,
    currency_symbol         VARCHAR(5) NOT NULL DEFAULT '',
    type                    VARCHAR(16) NOT NULL,
    status                  VARCHAR(16) NOT NULL,
    description             TEXT NOT NULL DEFAULT '',
    original_transaction_id UUID REFERENCES transactions (id),
    version                 BIGINT NOT NULL DEFAULT 1,
    created_at              TIMESTAMPTZ NOT NULL,
    CONSTRAINT transactions_original_transaction_id_key UNIQUE (original_transaction_id)
);

CREATE INDEX IF NOT EXISTS transactions_wallet_created_idx
    ON transactions (wallet_id, created_at DESC);
`

const refundUniqueConstraint = "transactions_original_transaction_id_key"

// Migrate creates the ledger tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// classifyError maps driver errors onto ledger error kinds:
// serialization failures and deadlocks are retryable conflicts,
// unique violations are duplicates.
func classifyError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case "40001", "40P01":
		return fmt.Errorf("%w: %v", models.ErrConcurrencyConflict, err)
	case "23505":
		if pqErr.Constraint == refundUniqueConstraint {
			return fmt.Errorf("%w: already refunded", models.ErrInvalidRefundTarget)
		}
		return fmt.Errorf("%w: %v", models.ErrDuplicateTransaction, err)
	}
	return err
}
