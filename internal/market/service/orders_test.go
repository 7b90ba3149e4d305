package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/castlemarket/castle-market/internal/market/errs"
	"github.com/castlemarket/castle-market/internal/market/models"
	"github.com/castlemarket/castle-market/internal/market/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOrdersService(t *testing.T) (*Orders, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOrders(repository.NewWithDB(db), zap.NewNop()), mock
}

var orderCols = []string{
	"id", "customer_id", "seller_id", "product_id", "castle_id",
	"status", "amount", "quantity", "created_at", "updated_at",
}

func orderRow(id, customerID int64, sellerID any, status models.OrderStatus, amount, quantity int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderCols).
		AddRow(id, customerID, sellerID, int64(10), int64(5), string(status), amount, quantity, now, now)
}

func TestCreateOrderReservesAmount(t *testing.T) {
	svc, mock := newOrdersService(t)
	customer := Actor{ID: 1, Role: models.RoleCustomer}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, active FROM products").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "active"}).
			AddRow(int64(10), "Castle defense service", int64(100), true))
	mock.ExpectQuery("SELECT id FROM castles").
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(200), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(int64(1), int64(10), int64(5), "pending", int64(200), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs("seller", "New Order Available", "A new order is available for you to accept", "order", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	orderID, err := svc.CreateOrder(context.Background(), customer, CreateOrderInput{
		ProductID: 10, CastleID: 5, Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), orderID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderUsesOfferPrice(t *testing.T) {
	svc, mock := newOrdersService(t)
	customer := Actor{ID: 1, Role: models.RoleCustomer}
	offerID := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, active FROM products").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "active"}).
			AddRow(int64(10), "Castle defense service", int64(100), true))
	mock.ExpectQuery("SELECT id FROM castles").
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery("SELECT id, product_id, title, quantity, price, is_active").
		WithArgs(int64(3), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "title", "quantity", "price", "is_active"}).
			AddRow(int64(3), int64(10), "Weekly bundle", int64(7), int64(600), true))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(600), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(int64(1), int64(10), int64(5), "pending", int64(600), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(43)))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs("seller", "New Order Available", "A new order is available for you to accept", "order", int64(43)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	orderID, err := svc.CreateOrder(context.Background(), customer, CreateOrderInput{
		ProductID: 10, CastleID: 5, Quantity: 7, OfferID: &offerID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(43), orderID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderInsufficientBalanceRollsBack(t *testing.T) {
	svc, mock := newOrdersService(t)
	customer := Actor{ID: 1, Role: models.RoleCustomer}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, active FROM products").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "active"}).
			AddRow(int64(10), "Castle defense service", int64(100), true))
	mock.ExpectQuery("SELECT id FROM castles").
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(700), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), customer, CreateOrderInput{
		ProductID: 10, CastleID: 5, Quantity: 7,
	})
	assert.Equal(t, errs.KindInsufficientBalance, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	svc, mock := newOrdersService(t)
	customer := Actor{ID: 1, Role: models.RoleCustomer}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, active FROM products").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "active"}).
			AddRow(int64(10), "Castle defense service", int64(100), false))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), customer, CreateOrderInput{
		ProductID: 10, CastleID: 5, Quantity: 1,
	})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRequiresCustomerRole(t *testing.T) {
	svc, mock := newOrdersService(t)

	_, err := svc.CreateOrder(context.Background(), Actor{ID: 9, Role: models.RoleSeller}, CreateOrderInput{
		ProductID: 10, CastleID: 5, Quantity: 1,
	})
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptOrderClaimsPendingOrder(t *testing.T) {
	svc, mock := newOrdersService(t)
	seller := Actor{ID: 9, Role: models.RoleSeller}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(orderRow(42, 7, nil, models.OrderPending, 200, 2))
	mock.ExpectQuery("UPDATE orders").
		WithArgs(int64(9), "accepted", int64(42), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(7), "Order Accepted", "Your order has been accepted by a seller", "order", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.AcceptOrder(context.Background(), seller, 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptOrderLoserGetsAlreadyClaimed(t *testing.T) {
	svc, mock := newOrdersService(t)
	seller := Actor{ID: 11, Role: models.RoleSeller}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(orderRow(42, 7, nil, models.OrderPending, 200, 2))
	mock.ExpectQuery("UPDATE orders").
		WithArgs(int64(11), "accepted", int64(42), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}))
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(orderRow(42, 7, int64(9), models.OrderAccepted, 200, 2))
	mock.ExpectRollback()

	err := svc.AcceptOrder(context.Background(), seller, 42)
	assert.Equal(t, errs.KindAlreadyClaimed, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptOrderOwnOrderForbidden(t *testing.T) {
	svc, mock := newOrdersService(t)
	seller := Actor{ID: 7, Role: models.RoleSeller}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(orderRow(42, 7, nil, models.OrderPending, 200, 2))
	mock.ExpectRollback()

	err := svc.AcceptOrder(context.Background(), seller, 42)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteOrderPaysSeller(t *testing.T) {
	svc, mock := newOrdersService(t)
	seller := Actor{ID: 9, Role: models.RoleSeller}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(orderRow(42, 7, int64(9), models.OrderAccepted, 200, 2))
	mock.ExpectExec("UPDATE orders").
		WithArgs("completed", int64(42), "accepted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(200), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(200), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WithArgs(int64(9), "payment", int64(200), "completed", "", "Payment for order #42").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(77)))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(7), "Order Completed", "Your order has been completed", "order", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.CompleteOrder(context.Background(), seller, 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteOrderWrongSeller(t *testing.T) {
	svc, mock := newOrdersService(t)
	other := Actor{ID: 11, Role: models.RoleSeller}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(orderRow(42, 7, int64(9), models.OrderAccepted, 200, 2))
	mock.ExpectRollback()

	err := svc.CompleteOrder(context.Background(), other, 42)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteOrderNotAccepted(t *testing.T) {
	svc, mock := newOrdersService(t)
	seller := Actor{ID: 9, Role: models.RoleSeller}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(orderRow(42, 7, int64(9), models.OrderCompleted, 200, 2))
	mock.ExpectExec("UPDATE orders").
		WithArgs("completed", int64(42), "accepted").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := svc.CompleteOrder(context.Background(), seller, 42)
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingOrderRefundsCustomer(t *testing.T) {
	svc, mock := newOrdersService(t)
	customer := Actor{ID: 7, Role: models.RoleCustomer}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(43)).
		WillReturnRows(orderRow(43, 7, nil, models.OrderPending, 150, 1))
	mock.ExpectExec("UPDATE orders").
		WithArgs("cancelled", int64(43), "pending", "accepted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(150), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WithArgs(int64(7), "refund", int64(150), "completed", "", "Refund for order #43").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(78)))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(7), "Order Cancelled", "Your order has been cancelled", "order", int64(43)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.CancelOrder(context.Background(), customer, 43))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelAcceptedOrderNotifiesSeller(t *testing.T) {
	svc, mock := newOrdersService(t)
	admin := Actor{ID: 2, Role: models.RoleAdmin}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(44)).
		WillReturnRows(orderRow(44, 7, int64(9), models.OrderAccepted, 300, 1))
	mock.ExpectExec("UPDATE orders").
		WithArgs("cancelled", int64(44), "pending", "accepted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(300), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WithArgs(int64(7), "refund", int64(300), "completed", "", "Refund for order #44").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(79)))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(9), "Order Cancelled", "An order you were assigned to has been cancelled", "order", int64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(7), "Order Cancelled", "Your order has been cancelled", "order", int64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.CancelOrder(context.Background(), admin, 44))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelOrderUnauthorizedActor(t *testing.T) {
	svc, mock := newOrdersService(t)
	stranger := Actor{ID: 99, Role: models.RoleCustomer}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(43)).
		WillReturnRows(orderRow(43, 7, nil, models.OrderPending, 150, 1))
	mock.ExpectRollback()

	err := svc.CancelOrder(context.Background(), stranger, 43)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelCompletedOrderInvalid(t *testing.T) {
	svc, mock := newOrdersService(t)
	admin := Actor{ID: 2, Role: models.RoleAdmin}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(45)).
		WillReturnRows(orderRow(45, 7, int64(9), models.OrderCompleted, 300, 1))
	mock.ExpectRollback()

	err := svc.CancelOrder(context.Background(), admin, 45)
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeOrderMovesToDisputed(t *testing.T) {
	svc, mock := newOrdersService(t)
	customer := Actor{ID: 7, Role: models.RoleCustomer}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(44)).
		WillReturnRows(orderRow(44, 7, int64(9), models.OrderAccepted, 300, 1))
	mock.ExpectExec("UPDATE orders").
		WithArgs("disputed", int64(44), "accepted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(9), "Order Disputed", "An order you are working on has been disputed: no delivery", "order", int64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs("admin", "Order Disputed", "A customer has disputed an order: no delivery", "order", int64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.DisputeOrder(context.Background(), customer, 44, "no delivery"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveDisputeRefundsCustomer(t *testing.T) {
	svc, mock := newOrdersService(t)
	admin := Actor{ID: 2, Role: models.RoleAdmin}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(44)).
		WillReturnRows(orderRow(44, 7, int64(9), models.OrderDisputed, 300, 1))
	mock.ExpectExec("UPDATE orders").
		WithArgs("cancelled", int64(44), "disputed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(300), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WithArgs(int64(7), "refund", int64(300), "completed", "", "Refund for order #44 (dispute upheld)").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(80)))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(7), "Dispute Resolved", "Your disputed order was cancelled and refunded", "order", int64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(9), "Dispute Resolved", "A dispute on one of your orders has been resolved", "order", int64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.ResolveDispute(context.Background(), admin, 44, false))
	require.NoError(t, mock.ExpectationsWereMet())
}
