// Package seed installs a small demo data set so the API is exercisable end
// to end. Gated behind config and idempotent.
package seed

import (
	"context"
	"database/sql"
	"errors"

	"github.com/castlemarket/castle-market/internal/market/logger"
	"github.com/castlemarket/castle-market/internal/market/models"
	"github.com/castlemarket/castle-market/internal/market/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const seedPassword = "password123"

var demoUsers = []struct {
	Username string
	Email    string
	Role     models.Role
	Points   int64
}{
	{"admin", "admin@demo.local", models.RoleAdmin, 0},
	{"seller1", "seller1@demo.local", models.RoleSeller, 0},
	{"customer1", "customer1@demo.local", models.RoleCustomer, 1000},
	{"customer2", "customer2@demo.local", models.RoleCustomer, 500},
}

// Run seeds demo users, castles, products and an offer. A second run is a
// no-op.
func Run(ctx context.Context, repo *repository.PostgresRepository) error {
	applied, err := alreadyApplied(ctx, repo)
	if err != nil {
		return err
	}
	if applied {
		logger.Log.Info("seed already applied, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	hashed := string(hash)

	err = repo.WithinTx(ctx, func(q repository.Querier) error {
		for _, u := range demoUsers {
			var id int64
			err := q.QueryRowContext(
				ctx,
				`INSERT INTO users (username, email, password_hash, role, points, reserved_points)
				 VALUES ($1, $2, $3, $4, $5, 0) RETURNING id`,
				u.Username, u.Email, hashed, u.Role, u.Points,
			).Scan(&id)
			if err != nil {
				return err
			}
			if u.Role == models.RoleCustomer {
				_, err = q.ExecContext(
					ctx,
					`INSERT INTO castles (user_id, name) VALUES ($1, $2)`,
					id, u.Username+"'s castle",
				)
				if err != nil {
					return err
				}
			}
		}

		var productID int64
		err := q.QueryRowContext(
			ctx,
			`INSERT INTO products (name, price, active) VALUES ($1, $2, true) RETURNING id`,
			"Castle defense service", int64(100),
		).Scan(&productID)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(
			ctx,
			`INSERT INTO products (name, price, active) VALUES ($1, $2, true)`,
			"Resource gathering", int64(50),
		)
		if err != nil {
			return err
		}

		_, err = q.ExecContext(
			ctx,
			`INSERT INTO offers (product_id, title, quantity, price, is_active)
			 VALUES ($1, $2, $3, $4, true)`,
			productID, "Weekly bundle", int64(7), int64(600),
		)
		return err
	})
	if err != nil {
		return err
	}

	logger.Log.Info("seeded demo data", zap.Int("users", len(demoUsers)))
	return nil
}

func alreadyApplied(ctx context.Context, repo *repository.PostgresRepository) (bool, error) {
	user, err := repo.UserByEmail(ctx, demoUsers[0].Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return user != nil, nil
}
