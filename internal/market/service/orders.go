package service

import (
	"context"
	"fmt"

	"github.com/castlemarket/castle-market/internal/market/errs"
	"github.com/castlemarket/castle-market/internal/market/ledger"
	"github.com/castlemarket/castle-market/internal/market/models"
	"github.com/castlemarket/castle-market/internal/market/repository"
	"go.uber.org/zap"
)

// Orders orchestrates the order lifecycle. It exclusively owns the
// transition logic: handlers never touch the ledger or order rows directly.
type Orders struct {
	repo repository.Repository
	log  *zap.Logger
}

// NewOrders creates the order orchestrator.
func NewOrders(repo repository.Repository, log *zap.Logger) *Orders {
	return &Orders{repo: repo, log: log}
}

// CreateOrderInput carries the customer's order request. OfferID, when set,
// selects a fixed-price offer overriding price × quantity.
type CreateOrderInput struct {
	ProductID int64
	CastleID  int64
	Quantity  int64
	OfferID   *int64
}

// CreateOrder reserves the amount from the customer's points and opens a
// pending order. Sellers are notified of the new order.
func (s *Orders) CreateOrder(ctx context.Context, actor Actor, in CreateOrderInput) (int64, error) {
	if actor.Role != models.RoleCustomer {
		return 0, errs.New(errs.KindUnauthorized, "only customers can create orders")
	}
	if in.Quantity < 1 {
		return 0, errs.New(errs.KindInvalidInput, "quantity must be at least 1")
	}

	var orderID int64
	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		product, err := repository.ProductByID(ctx, q, in.ProductID)
		if err != nil {
			return err
		}
		if !product.Active {
			return errs.New(errs.KindNotFound, "product is not available")
		}

		owned, err := repository.CastleOwnedBy(ctx, q, in.CastleID, actor.ID)
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not check castle", err)
		}
		if !owned {
			return errs.New(errs.KindNotFound, "castle not found or not owned by you")
		}

		amount := product.Price * in.Quantity
		if in.OfferID != nil {
			offer, err := repository.OfferForProduct(ctx, q, *in.OfferID, in.ProductID)
			if err != nil {
				return err
			}
			amount = offer.Price
		}

		if err := ledger.Reserve(ctx, q, actor.ID, amount); err != nil {
			return err
		}

		orderID, err = repository.InsertOrder(ctx, q, &models.Order{
			CustomerID: actor.ID,
			ProductID:  in.ProductID,
			CastleID:   in.CastleID,
			Amount:     amount,
			Quantity:   in.Quantity,
		})
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not create order", err)
		}

		return notifyRole(ctx, q, models.RoleSeller,
			"New Order Available",
			"A new order is available for you to accept",
			notificationTypeOrder, &orderID)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("order created",
		zap.Int64("order_id", orderID),
		zap.Int64("customer_id", actor.ID))
	return orderID, nil
}

// AcceptOrder atomically claims a pending, unassigned order for the seller.
// Of two racing sellers exactly one wins; the loser gets AlreadyClaimed.
func (s *Orders) AcceptOrder(ctx context.Context, actor Actor, orderID int64) error {
	if actor.Role != models.RoleSeller {
		return errs.New(errs.KindUnauthorized, "only sellers can accept orders")
	}

	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		order, err := repository.OrderByID(ctx, q, orderID)
		if err != nil {
			return err
		}
		if order.CustomerID == actor.ID {
			return errs.New(errs.KindUnauthorized, "you cannot accept your own order")
		}

		customerID, claimed, err := repository.ClaimOrder(ctx, q, orderID, actor.ID)
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not accept order", err)
		}
		if !claimed {
			// Lost the race or the order left pending; re-read to tell apart.
			current, err := repository.OrderByID(ctx, q, orderID)
			if err != nil {
				return err
			}
			if current.SellerID != nil {
				return errs.New(errs.KindAlreadyClaimed, "order already accepted by another seller")
			}
			return errs.New(errs.KindInvalidTransition, "order is not open for acceptance")
		}

		return notifyUser(ctx, q, customerID,
			"Order Accepted",
			"Your order has been accepted by a seller",
			notificationTypeOrder, &orderID)
	})
	if err != nil {
		return err
	}

	s.log.Info("order accepted",
		zap.Int64("order_id", orderID),
		zap.Int64("seller_id", actor.ID))
	return nil
}

// CompleteOrder pays the assigned seller out of the customer's reserve and
// closes the order. Exactly one payment audit record is written.
func (s *Orders) CompleteOrder(ctx context.Context, actor Actor, orderID int64) error {
	if actor.Role != models.RoleSeller {
		return errs.New(errs.KindUnauthorized, "only sellers can complete orders")
	}

	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		order, err := repository.OrderByID(ctx, q, orderID)
		if err != nil {
			return err
		}
		if order.SellerID == nil || *order.SellerID != actor.ID {
			return errs.New(errs.KindUnauthorized, "order is not assigned to you")
		}

		ok, err := repository.TransitionOrder(ctx, q, orderID,
			[]models.OrderStatus{models.OrderAccepted}, models.OrderCompleted)
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not complete order", err)
		}
		if !ok {
			return errs.New(errs.KindInvalidTransition, "order cannot be completed at this stage")
		}

		if err := ledger.Payout(ctx, q, order.CustomerID, actor.ID, order.Amount); err != nil {
			return err
		}

		_, err = repository.InsertTransaction(ctx, q, &models.Transaction{
			UserID: actor.ID,
			Type:   models.TxPayment,
			Amount: order.Amount,
			Status: models.TxCompleted,
			Notes:  fmt.Sprintf("Payment for order #%d", orderID),
		})
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not record payment", err)
		}

		return notifyUser(ctx, q, order.CustomerID,
			"Order Completed",
			"Your order has been completed",
			notificationTypeOrder, &orderID)
	})
	if err != nil {
		return err
	}

	s.log.Info("order completed",
		zap.Int64("order_id", orderID),
		zap.Int64("seller_id", actor.ID))
	return nil
}

// CancelOrder refunds the customer's reserve and closes the order. Allowed
// for an admin, the owning customer, or the assigned seller while the order
// is pending or accepted.
func (s *Orders) CancelOrder(ctx context.Context, actor Actor, orderID int64) error {
	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		order, err := repository.OrderByID(ctx, q, orderID)
		if err != nil {
			return err
		}
		if !CanCancel(actor, order) {
			return errs.New(errs.KindUnauthorized, "you do not have permission to cancel this order")
		}
		if !Cancellable(order.Status) {
			return errs.New(errs.KindInvalidTransition, "order cannot be cancelled at this stage")
		}

		ok, err := repository.TransitionOrder(ctx, q, orderID, cancellableFrom, models.OrderCancelled)
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not cancel order", err)
		}
		if !ok {
			return errs.New(errs.KindInvalidTransition, "order cannot be cancelled at this stage")
		}

		if err := ledger.Refund(ctx, q, order.CustomerID, order.Amount); err != nil {
			return err
		}

		_, err = repository.InsertTransaction(ctx, q, &models.Transaction{
			UserID: order.CustomerID,
			Type:   models.TxRefund,
			Amount: order.Amount,
			Status: models.TxCompleted,
			Notes:  fmt.Sprintf("Refund for order #%d", orderID),
		})
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not record refund", err)
		}

		if order.SellerID != nil {
			if err := notifyUser(ctx, q, *order.SellerID,
				"Order Cancelled",
				"An order you were assigned to has been cancelled",
				notificationTypeOrder, &orderID); err != nil {
				return err
			}
		}
		return notifyUser(ctx, q, order.CustomerID,
			"Order Cancelled",
			"Your order has been cancelled",
			notificationTypeOrder, &orderID)
	})
	if err != nil {
		return err
	}

	s.log.Info("order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int64("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)))
	return nil
}

// DisputeOrder moves an accepted order into the disputed state on behalf of
// the owning customer. Resolution is an admin operation.
func (s *Orders) DisputeOrder(ctx context.Context, actor Actor, orderID int64, reason string) error {
	if actor.Role != models.RoleCustomer {
		return errs.New(errs.KindUnauthorized, "only customers can dispute orders")
	}

	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		order, err := repository.OrderByID(ctx, q, orderID)
		if err != nil {
			return err
		}
		if order.CustomerID != actor.ID {
			return errs.New(errs.KindUnauthorized, "you do not own this order")
		}

		ok, err := repository.TransitionOrder(ctx, q, orderID,
			[]models.OrderStatus{models.OrderAccepted}, models.OrderDisputed)
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not dispute order", err)
		}
		if !ok {
			return errs.New(errs.KindInvalidTransition, "only accepted orders can be disputed")
		}

		if order.SellerID != nil {
			if err := notifyUser(ctx, q, *order.SellerID,
				"Order Disputed",
				"An order you are working on has been disputed: "+reason,
				notificationTypeOrder, &orderID); err != nil {
				return err
			}
		}
		return notifyRole(ctx, q, models.RoleAdmin,
			"Order Disputed",
			"A customer has disputed an order: "+reason,
			notificationTypeOrder, &orderID)
	})
	if err != nil {
		return err
	}

	s.log.Info("order disputed",
		zap.Int64("order_id", orderID),
		zap.Int64("customer_id", actor.ID))
	return nil
}

// ResolveDispute settles a disputed order: release pays the seller, refuse
// refunds the customer. Admin only.
func (s *Orders) ResolveDispute(ctx context.Context, actor Actor, orderID int64, release bool) error {
	if actor.Role != models.RoleAdmin {
		return errs.New(errs.KindUnauthorized, "only admins can resolve disputes")
	}

	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		order, err := repository.OrderByID(ctx, q, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderDisputed {
			return errs.New(errs.KindInvalidTransition, "order is not disputed")
		}
		if order.SellerID == nil {
			// Disputes start from accepted, so a missing seller is broken data.
			return errs.New(errs.KindLedgerCorruption, "disputed order has no seller")
		}

		target := models.OrderCancelled
		if release {
			target = models.OrderCompleted
		}
		ok, err := repository.TransitionOrder(ctx, q, orderID,
			[]models.OrderStatus{models.OrderDisputed}, target)
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not resolve dispute", err)
		}
		if !ok {
			return errs.New(errs.KindInvalidTransition, "order is not disputed")
		}

		if release {
			if err := ledger.Payout(ctx, q, order.CustomerID, *order.SellerID, order.Amount); err != nil {
				return err
			}
			_, err = repository.InsertTransaction(ctx, q, &models.Transaction{
				UserID: *order.SellerID,
				Type:   models.TxPayment,
				Amount: order.Amount,
				Status: models.TxCompleted,
				Notes:  fmt.Sprintf("Payment for order #%d (dispute released)", orderID),
			})
		} else {
			if err := ledger.Refund(ctx, q, order.CustomerID, order.Amount); err != nil {
				return err
			}
			_, err = repository.InsertTransaction(ctx, q, &models.Transaction{
				UserID: order.CustomerID,
				Type:   models.TxRefund,
				Amount: order.Amount,
				Status: models.TxCompleted,
				Notes:  fmt.Sprintf("Refund for order #%d (dispute upheld)", orderID),
			})
		}
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not record dispute settlement", err)
		}

		outcome := "Your disputed order was cancelled and refunded"
		if release {
			outcome = "Your disputed order was released to the seller"
		}
		if err := notifyUser(ctx, q, order.CustomerID,
			"Dispute Resolved", outcome, notificationTypeOrder, &orderID); err != nil {
			return err
		}
		return notifyUser(ctx, q, *order.SellerID,
			"Dispute Resolved",
			"A dispute on one of your orders has been resolved",
			notificationTypeOrder, &orderID)
	})
	if err != nil {
		return err
	}

	s.log.Info("dispute resolved",
		zap.Int64("order_id", orderID),
		zap.Bool("released", release))
	return nil
}
