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

// Wallet handles balance reads, top-ups and withdrawals.
type Wallet struct {
	repo repository.Repository
	log  *zap.Logger
}

// NewWallet creates the wallet service.
func NewWallet(repo repository.Repository, log *zap.Logger) *Wallet {
	return &Wallet{repo: repo, log: log}
}

// Balance returns the actor's spendable and reserved points.
func (s *Wallet) Balance(ctx context.Context, actor Actor) (*models.Balance, error) {
	return s.repo.Balance(ctx, actor.ID)
}

// Transactions returns the actor's ledger audit records, newest first.
func (s *Wallet) Transactions(ctx context.Context, actor Actor) ([]models.Transaction, error) {
	return s.repo.TransactionsForUser(ctx, actor.ID)
}

// Notifications returns the actor's recent notifications.
func (s *Wallet) Notifications(ctx context.Context, actor Actor) ([]models.Notification, error) {
	return s.repo.NotificationsForUser(ctx, actor.ID)
}

// RequestTopUp records a pending top-up for admin review. Points are only
// credited when an admin approves.
func (s *Wallet) RequestTopUp(ctx context.Context, actor Actor, amount int64, paymentMethod, notes string) (int64, error) {
	if actor.Role != models.RoleCustomer {
		return 0, errs.New(errs.KindUnauthorized, "only customers can request top-ups")
	}
	if amount <= 0 {
		return 0, errs.New(errs.KindInvalidInput, "amount must be positive")
	}
	if paymentMethod == "" {
		return 0, errs.New(errs.KindInvalidInput, "payment method is required")
	}

	var txID int64
	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		var err error
		txID, err = repository.InsertTransaction(ctx, q, &models.Transaction{
			UserID:        actor.ID,
			Type:          models.TxTopUp,
			Amount:        amount,
			Status:        models.TxPending,
			PaymentMethod: paymentMethod,
			Notes:         notes,
		})
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not record top-up request", err)
		}
		return notifyRole(ctx, q, models.RoleAdmin,
			"New Top-up Request",
			"A new point top-up request needs verification",
			notificationTypePayment, &txID)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("top-up requested",
		zap.Int64("transaction_id", txID),
		zap.Int64("user_id", actor.ID),
		zap.Int64("amount", amount))
	return txID, nil
}

// ReviewTopUp settles a pending top-up. Approval credits the points; a
// second review of the same request finds nothing to settle.
func (s *Wallet) ReviewTopUp(ctx context.Context, actor Actor, txID int64, approve bool) error {
	if actor.Role != models.RoleAdmin {
		return errs.New(errs.KindUnauthorized, "only admins can review top-ups")
	}

	status := models.TxRejected
	if approve {
		status = models.TxCompleted
	}

	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		userID, amount, settled, err := repository.SettlePendingTopUp(ctx, q, txID, status)
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not settle top-up", err)
		}
		if !settled {
			return errs.New(errs.KindNotFound, "top-up not found or already processed")
		}

		if approve {
			if err := ledger.Credit(ctx, q, userID, amount); err != nil {
				return err
			}
		}

		title, message := "Top-up Rejected", fmt.Sprintf("Your top-up request for %d points has been rejected", amount)
		if approve {
			title, message = "Top-up Approved", fmt.Sprintf("Your top-up request for %d points has been approved", amount)
		}
		return notifyUser(ctx, q, userID, title, message, notificationTypePayment, &txID)
	})
	if err != nil {
		return err
	}

	s.log.Info("top-up reviewed",
		zap.Int64("transaction_id", txID),
		zap.Bool("approved", approve))
	return nil
}

// RequestWithdrawal debits the seller's points and records a pending payout
// for admins to process out of band.
func (s *Wallet) RequestWithdrawal(ctx context.Context, actor Actor, amount int64) (int64, error) {
	if actor.Role != models.RoleSeller {
		return 0, errs.New(errs.KindUnauthorized, "only sellers can request withdrawals")
	}
	if amount <= 0 {
		return 0, errs.New(errs.KindInvalidInput, "amount must be positive")
	}

	var txID int64
	err := s.repo.WithinTx(ctx, func(q repository.Querier) error {
		if err := ledger.Debit(ctx, q, actor.ID, amount); err != nil {
			return err
		}

		var err error
		txID, err = repository.InsertTransaction(ctx, q, &models.Transaction{
			UserID: actor.ID,
			Type:   models.TxPayout,
			Amount: amount,
			Status: models.TxPending,
			Notes:  "Withdrawal request",
		})
		if err != nil {
			return errs.Wrap(errs.KindStorage, "could not record withdrawal", err)
		}
		return notifyRole(ctx, q, models.RoleAdmin,
			"New Withdrawal Request",
			"A seller has requested a withdrawal",
			notificationTypePayment, &txID)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("withdrawal requested",
		zap.Int64("transaction_id", txID),
		zap.Int64("seller_id", actor.ID),
		zap.Int64("amount", amount))
	return txID, nil
}
