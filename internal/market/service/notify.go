package service

import (
	"context"

	"github.com/castlemarket/castle-market/internal/market/errs"
	"github.com/castlemarket/castle-market/internal/market/models"
	"github.com/castlemarket/castle-market/internal/market/repository"
)

// Notification emission runs inside the same transaction as the state
// transition that triggered it: a failed insert rolls back the whole unit of
// work. Strict atomicity is the documented policy (see DESIGN.md).

const notificationTypeOrder = "order"
const notificationTypePayment = "payment"

func notifyUser(ctx context.Context, q repository.Querier, userID int64, title, message, ntype string, referenceID *int64) error {
	_, err := q.ExecContext(
		ctx,
		`INSERT INTO notifications (user_id, title, message, type, reference_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		userID, title, message, ntype, referenceID,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not create notification", err)
	}
	return nil
}

// notifyRole fans a notification out to every user holding the role.
func notifyRole(ctx context.Context, q repository.Querier, role models.Role, title, message, ntype string, referenceID *int64) error {
	_, err := q.ExecContext(
		ctx,
		`INSERT INTO notifications (user_id, title, message, type, reference_id)
		 SELECT id, $2, $3, $4, $5 FROM users WHERE role = $1`,
		role, title, message, ntype, referenceID,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not create notifications", err)
	}
	return nil
}
