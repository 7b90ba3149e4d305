// Package ledger implements the atomic balance primitives. Every mutation is
// a single conditional UPDATE whose predicate enforces the guard, so there is
// no check-then-act window between reading a balance and writing it.
package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/castlemarket/castle-market/internal/market/errs"
	"github.com/castlemarket/castle-market/internal/market/logger"
	"github.com/castlemarket/castle-market/internal/market/repository"
	"go.uber.org/zap"
)

// Reserve moves amount from the user's spendable points into reserve.
// Fails with InsufficientBalance unless points >= amount at write time.
func Reserve(ctx context.Context, q repository.Querier, userID, amount int64) error {
	if amount <= 0 {
		return errs.New(errs.KindInvalidInput, "amount must be positive")
	}

	res, err := q.ExecContext(
		ctx,
		`UPDATE users
		 SET points = points - $1, reserved_points = reserved_points + $1
		 WHERE id = $2 AND points >= $1`,
		amount, userID,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not reserve points", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errs.Wrap(errs.KindStorage, "could not reserve points", err)
	} else if n == 0 {
		return classifyMiss(ctx, q, userID, errs.New(errs.KindInsufficientBalance, "not enough points"))
	}
	return nil
}

// Refund releases amount from the user's reserve back into spendable points.
// A reserve shortfall here is not a business condition: it means the books
// are broken, so the error is LedgerCorruption and gets logged loudly.
func Refund(ctx context.Context, q repository.Querier, userID, amount int64) error {
	if amount <= 0 {
		return errs.New(errs.KindInvalidInput, "amount must be positive")
	}

	res, err := q.ExecContext(
		ctx,
		`UPDATE users
		 SET points = points + $1, reserved_points = reserved_points - $1
		 WHERE id = $2 AND reserved_points >= $1`,
		amount, userID,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not refund points", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errs.Wrap(errs.KindStorage, "could not refund points", err)
	} else if n == 0 {
		return classifyMiss(ctx, q, userID, corruption("refund", userID, amount))
	}
	return nil
}

// Payout releases amount from the payer's reserve and credits it to the
// payee's spendable points. Total system points stay unchanged.
func Payout(ctx context.Context, q repository.Querier, fromUserID, toUserID, amount int64) error {
	if amount <= 0 {
		return errs.New(errs.KindInvalidInput, "amount must be positive")
	}

	res, err := q.ExecContext(
		ctx,
		`UPDATE users
		 SET reserved_points = reserved_points - $1
		 WHERE id = $2 AND reserved_points >= $1`,
		amount, fromUserID,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not release reserved points", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errs.Wrap(errs.KindStorage, "could not release reserved points", err)
	} else if n == 0 {
		return classifyMiss(ctx, q, fromUserID, corruption("payout", fromUserID, amount))
	}

	res, err = q.ExecContext(
		ctx,
		`UPDATE users SET points = points + $1 WHERE id = $2`,
		amount, toUserID,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not credit payout", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errs.Wrap(errs.KindStorage, "could not credit payout", err)
	} else if n == 0 {
		return errs.New(errs.KindNotFound, "payout recipient not found")
	}
	return nil
}

// Credit adds amount to the user's spendable points (top-up approval).
func Credit(ctx context.Context, q repository.Querier, userID, amount int64) error {
	if amount <= 0 {
		return errs.New(errs.KindInvalidInput, "amount must be positive")
	}

	res, err := q.ExecContext(
		ctx,
		`UPDATE users SET points = points + $1 WHERE id = $2`,
		amount, userID,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not credit points", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errs.Wrap(errs.KindStorage, "could not credit points", err)
	} else if n == 0 {
		return errs.New(errs.KindNotFound, "user not found")
	}
	return nil
}

// Debit removes amount from the user's spendable points (withdrawal).
func Debit(ctx context.Context, q repository.Querier, userID, amount int64) error {
	if amount <= 0 {
		return errs.New(errs.KindInvalidInput, "amount must be positive")
	}

	res, err := q.ExecContext(
		ctx,
		`UPDATE users SET points = points - $1 WHERE id = $2 AND points >= $1`,
		amount, userID,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not debit points", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errs.Wrap(errs.KindStorage, "could not debit points", err)
	} else if n == 0 {
		return classifyMiss(ctx, q, userID, errs.New(errs.KindInsufficientBalance, "not enough points"))
	}
	return nil
}

// classifyMiss distinguishes "user does not exist" from a failed balance
// guard after a zero-row conditional update.
func classifyMiss(ctx context.Context, q repository.Querier, userID int64, guardErr error) error {
	var exists bool
	err := q.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.KindStorage, "could not look up user", err)
	}
	if !exists {
		return errs.New(errs.KindNotFound, "user not found")
	}
	return guardErr
}

func corruption(op string, userID, amount int64) error {
	logger.Log.Error("ledger invariant violated: reserved_points would go negative",
		zap.String("op", op),
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount),
	)
	return errs.New(errs.KindLedgerCorruption, "ledger inconsistency detected")
}
