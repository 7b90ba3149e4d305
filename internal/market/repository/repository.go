package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/castlemarket/castle-market/internal/market/errs"
	"github.com/castlemarket/castle-market/internal/market/models"
	_ "github.com/jackc/pgx/v4/stdlib"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx. All
// tx-scoped helpers and the ledger primitives operate on it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository defines the data access surface consumed by handlers and
// services.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, username, email, passwordHash string, role models.Role) (int64, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)

	// Read-side order listings
	OrdersForActor(ctx context.Context, actorID int64, role models.Role) ([]models.Order, error)
	AvailableOrders(ctx context.Context) ([]models.Order, error)

	// Wallet read side
	Balance(ctx context.Context, userID int64) (*models.Balance, error)
	TransactionsForUser(ctx context.Context, userID int64) ([]models.Transaction, error)
	NotificationsForUser(ctx context.Context, userID int64) ([]models.Notification, error)

	// WithinTx runs fn inside one all-or-nothing transaction. Any error from
	// fn rolls the whole unit of work back.
	WithinTx(ctx context.Context, fn func(q Querier) error) error

	Close() error
}

// PostgresRepository implements Repository over PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// Open connects to the database and verifies the connection.
func Open(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection.
func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx begins a transaction, runs fn, and commits only if fn returned
// nil. Rollback on any early return is unconditional.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not start transaction", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorage, "could not commit transaction", err)
	}
	return nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, username, email, passwordHash string, role models.Role) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(
		ctx,
		`INSERT INTO users (username, email, password_hash, role, points, reserved_points)
		 VALUES ($1, $2, $3, $4, 0, 0) RETURNING id`,
		username, email, passwordHash, role,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const userColumns = `id, username, email, password_hash, role, points, reserved_points, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Role, &user.Points, &user.ReservedPoints, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresRepository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(
		ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	))
}

func (r *PostgresRepository) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(
		ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
}

const orderColumns = `id, customer_id, seller_id, product_id, castle_id, status, amount, quantity, created_at, updated_at`

func scanOrders(rows *sql.Rows) ([]models.Order, error) {
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(
			&o.ID, &o.CustomerID, &o.SellerID, &o.ProductID, &o.CastleID,
			&o.Status, &o.Amount, &o.Quantity, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// OrdersForActor returns the role-scoped order listing: admins see every
// order, sellers the ones assigned to them, customers their own.
func (r *PostgresRepository) OrdersForActor(ctx context.Context, actorID int64, role models.Role) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders `
	var (
		rows *sql.Rows
		err  error
	)
	switch role {
	case models.RoleAdmin:
		rows, err = r.db.QueryContext(ctx, query+`ORDER BY created_at DESC`)
	case models.RoleSeller:
		rows, err = r.db.QueryContext(ctx, query+`WHERE seller_id = $1 ORDER BY created_at DESC`, actorID)
	default:
		rows, err = r.db.QueryContext(ctx, query+`WHERE customer_id = $1 ORDER BY created_at DESC`, actorID)
	}
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

// AvailableOrders returns pending orders no seller has claimed yet.
func (r *PostgresRepository) AvailableOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = $1 AND seller_id IS NULL
		 ORDER BY created_at DESC`,
		models.OrderPending,
	)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (r *PostgresRepository) Balance(ctx context.Context, userID int64) (*models.Balance, error) {
	b := &models.Balance{}
	err := r.db.QueryRowContext(
		ctx,
		`SELECT points, reserved_points FROM users WHERE id = $1`,
		userID,
	).Scan(&b.Points, &b.ReservedPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.KindNotFound, "user not found")
		}
		return nil, err
	}
	return b, nil
}

func (r *PostgresRepository) TransactionsForUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, type, amount, status, payment_method, notes, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var method, notes sql.NullString
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status,
			&method, &notes, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.PaymentMethod = method.String
		t.Notes = notes.String
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *PostgresRepository) NotificationsForUser(ctx context.Context, userID int64) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, title, message, type, reference_id, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 100`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ns []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type,
			&n.ReferenceID, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ns, nil
}
