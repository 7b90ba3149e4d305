package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/castlemarket/castle-market/internal/market/errs"
	"github.com/castlemarket/castle-market/internal/market/models"
)

// Tx-scoped helpers used by the orchestrator inside WithinTx. They take a
// Querier so the same code runs against *sql.Tx and *sql.DB.

// ProductByID returns the product or a NotFound error.
func ProductByID(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	p := &models.Product{}
	err := q.QueryRowContext(
		ctx,
		`SELECT id, name, price, active FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.KindNotFound, "product not found")
		}
		return nil, err
	}
	return p, nil
}

// OfferForProduct returns the active offer if it belongs to the product.
func OfferForProduct(ctx context.Context, q Querier, offerID, productID int64) (*models.Offer, error) {
	o := &models.Offer{}
	err := q.QueryRowContext(
		ctx,
		`SELECT id, product_id, title, quantity, price, is_active
		 FROM offers
		 WHERE id = $1 AND product_id = $2 AND is_active = true`,
		offerID, productID,
	).Scan(&o.ID, &o.ProductID, &o.Title, &o.Quantity, &o.Price, &o.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.KindNotFound, "offer not found for this product")
		}
		return nil, err
	}
	return o, nil
}

// CastleOwnedBy reports whether the castle exists and belongs to the user.
func CastleOwnedBy(ctx context.Context, q Querier, castleID, userID int64) (bool, error) {
	var id int64
	err := q.QueryRowContext(
		ctx,
		`SELECT id FROM castles WHERE id = $1 AND user_id = $2`,
		castleID, userID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// OrderByID returns the order or a NotFound error.
func OrderByID(ctx context.Context, q Querier, id int64) (*models.Order, error) {
	o := &models.Order{}
	err := q.QueryRowContext(
		ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		id,
	).Scan(
		&o.ID, &o.CustomerID, &o.SellerID, &o.ProductID, &o.CastleID,
		&o.Status, &o.Amount, &o.Quantity, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.KindNotFound, "order not found")
		}
		return nil, err
	}
	return o, nil
}

// InsertOrder creates a pending order and returns its id.
func InsertOrder(ctx context.Context, q Querier, o *models.Order) (int64, error) {
	var id int64
	err := q.QueryRowContext(
		ctx,
		`INSERT INTO orders (customer_id, product_id, castle_id, status, amount, quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
		o.CustomerID, o.ProductID, o.CastleID, models.OrderPending, o.Amount, o.Quantity,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ClaimOrder atomically assigns a pending, unclaimed order to the seller.
// The predicate is the concurrency control: of two racing sellers, exactly
// one observes a row and the loser gets claimed=false.
func ClaimOrder(ctx context.Context, q Querier, orderID, sellerID int64) (customerID int64, claimed bool, err error) {
	err = q.QueryRowContext(
		ctx,
		`UPDATE orders
		 SET seller_id = $1, status = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4 AND seller_id IS NULL
		 RETURNING customer_id`,
		sellerID, models.OrderAccepted, orderID, models.OrderPending,
	).Scan(&customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return customerID, true, nil
}

// TransitionOrder moves the order to the target status only if it currently
// sits in one of the allowed source statuses. Returns false when the guard
// did not match, i.e. the transition was invalid or already raced.
func TransitionOrder(ctx context.Context, q Querier, orderID int64, from []models.OrderStatus, to models.OrderStatus) (bool, error) {
	args := []any{to, orderID}
	placeholders := make([]string, 0, len(from))
	for _, s := range from {
		args = append(args, s)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	res, err := q.ExecContext(
		ctx,
		`UPDATE orders
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InsertTransaction appends an audit record to the ledger log.
func InsertTransaction(ctx context.Context, q Querier, t *models.Transaction) (int64, error) {
	var id int64
	err := q.QueryRowContext(
		ctx,
		`INSERT INTO transactions (user_id, type, amount, status, payment_method, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NOW(), NOW()) RETURNING id`,
		t.UserID, t.Type, t.Amount, t.Status, t.PaymentMethod, t.Notes,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SettlePendingTopUp flips a pending top-up to the given terminal status and
// returns its owner and amount. The status predicate makes review single
// shot: a second reviewer observes no row.
func SettlePendingTopUp(ctx context.Context, q Querier, txID int64, to models.TransactionStatus) (userID, amount int64, settled bool, err error) {
	err = q.QueryRowContext(
		ctx,
		`UPDATE transactions
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND type = $3 AND status = $4
		 RETURNING user_id, amount`,
		to, txID, models.TxTopUp, models.TxPending,
	).Scan(&userID, &amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return userID, amount, true, nil
}
