package models

import (
	"time"
)

// Role gates which operations an actor may invoke.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderAccepted  OrderStatus = "accepted"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderDisputed  OrderStatus = "disputed"
)

// TransactionType classifies ledger audit records.
type TransactionType string

const (
	TxPayment TransactionType = "payment"
	TxPayout  TransactionType = "payout"
	TxRefund  TransactionType = "refund"
	TxTopUp   TransactionType = "top_up"
)

// TransactionStatus is the review state of a ledger audit record. Only
// top-up and payout records ever sit in pending.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxRejected  TransactionStatus = "rejected"
)

// User carries the two balances the ledger mutates: spendable points and
// points reserved against open orders.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	Points         int64     `json:"points"`
	ReservedPoints int64     `json:"reserved_points"`
	CreatedAt      time.Time `json:"created_at"`
}

// Order is a single purchase of a product against a castle. Amount is fixed
// at creation; SellerID is set exactly once, on acceptance.
type Order struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customer_id"`
	SellerID   *int64      `json:"seller_id,omitempty"`
	ProductID  int64       `json:"product_id"`
	CastleID   int64       `json:"castle_id"`
	Status     OrderStatus `json:"status"`
	Amount     int64       `json:"amount"`
	Quantity   int64       `json:"quantity"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Transaction is an immutable audit record of a balance-affecting event.
type Transaction struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	Type          TransactionType   `json:"type"`
	Amount        int64             `json:"amount"`
	Status        TransactionStatus `json:"status"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Notification is a side-channel record informing a user of a transition.
type Notification struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	ReferenceID *int64    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product is a catalog entry priced per unit.
type Product struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Price  int64  `json:"price"`
	Active bool   `json:"active"`
}

// Offer is an alternate fixed total price for a product at a quantity.
type Offer struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
	IsActive  bool   `json:"is_active"`
}

// Castle is a customer-owned account an order is performed against. The
// ledger only cares about ownership.
type Castle struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// Balance is the pair of balances reported by the wallet endpoints.
type Balance struct {
	Points         int64 `json:"points"`
	ReservedPoints int64 `json:"reserved_points"`
}
