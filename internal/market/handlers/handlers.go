package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/castlemarket/castle-market/internal/market/errs"
	"github.com/castlemarket/castle-market/internal/market/httputil"
	"github.com/castlemarket/castle-market/internal/market/middleware"
	"github.com/castlemarket/castle-market/internal/market/models"
	"github.com/castlemarket/castle-market/internal/market/repository"
	"github.com/castlemarket/castle-market/internal/market/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Handler wires the HTTP surface to the services.
type Handler struct {
	Repo      repository.Repository
	Orders    *service.Orders
	Wallet    *service.Wallet
	JWTSecret string
	Log       *zap.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(repo repository.Repository, orders *service.Orders, wallet *service.Wallet, jwtSecret string, log *zap.Logger) *Handler {
	return &Handler{
		Repo:      repo,
		Orders:    orders,
		Wallet:    wallet,
		JWTSecret: jwtSecret,
		Log:       log,
	}
}

// statusForKind maps the error taxonomy to HTTP statuses. Internal kinds
// collapse to 500 with a generic message so nothing leaks.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindUnauthorized:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindInvalidTransition, errs.KindAlreadyClaimed:
		return http.StatusConflict
	case errs.KindInsufficientBalance:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.Error(err))
		httputil.WriteError(w, status, "internal error")
		return
	}
	httputil.WriteError(w, status, errs.MessageOf(err))
}

// Register creates a customer account and returns a token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	ctx := r.Context()
	existing, err := h.Repo.UserByEmail(ctx, req.Email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if existing != nil {
		httputil.WriteError(w, http.StatusConflict, "email already taken")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	userID, err := h.Repo.CreateUser(ctx, req.Username, req.Email, string(hashed), models.RoleCustomer)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	token, err := middleware.GenerateToken(userID, models.RoleCustomer, h.JWTSecret)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Login authenticates credentials and returns a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.Repo.UserByEmail(r.Context(), req.Email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if user == nil {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Role, h.JWTSecret)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

func actorOr401(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
	}
	return actor, ok
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// CreateOrder opens a new order for the customer.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		ProductID int64  `json:"product_id"`
		CastleID  int64  `json:"castle_id"`
		Quantity  int64  `json:"quantity"`
		OfferID   *int64 `json:"offer_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	orderID, err := h.Orders.CreateOrder(r.Context(), actor, service.CreateOrderInput{
		ProductID: req.ProductID,
		CastleID:  req.CastleID,
		Quantity:  req.Quantity,
		OfferID:   req.OfferID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]int64{"order_id": orderID})
}

// ListOrders returns the role-scoped order listing.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	orders, err := h.Repo.OrdersForActor(r.Context(), actor.ID, actor.Role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orders)
}

// AvailableOrders returns pending unassigned orders for sellers.
func (h *Handler) AvailableOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	if actor.Role != models.RoleSeller {
		httputil.WriteError(w, http.StatusForbidden, "only sellers can browse available orders")
		return
	}

	orders, err := h.Repo.AvailableOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orders)
}

// AcceptOrder claims a pending order for the seller.
func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.Orders.AcceptOrder(r.Context(), actor, orderID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// CompleteOrder settles the order in the assigned seller's favor.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.Orders.CompleteOrder(r.Context(), actor, orderID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// CancelOrder cancels the order and refunds the customer.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.Orders.CancelOrder(r.Context(), actor, orderID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DisputeOrder moves an accepted order into dispute.
func (h *Handler) DisputeOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Reason == "" {
		httputil.WriteError(w, http.StatusBadRequest, "reason is required")
		return
	}

	if err := h.Orders.DisputeOrder(r.Context(), actor, orderID, req.Reason); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ResolveDispute settles a disputed order (admin only).
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Release bool `json:"release"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}

	if err := h.Orders.ResolveDispute(r.Context(), actor, orderID, req.Release); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Balance returns the actor's points and reserved points.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	balance, err := h.Wallet.Balance(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balance)
}

// Transactions returns the actor's ledger audit records.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	txs, err := h.Wallet.Transactions(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txs)
}

// Notifications returns the actor's recent notifications.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	ns, err := h.Wallet.Notifications(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if len(ns) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ns)
}

// RequestTopUp records a pending top-up for the customer.
func (h *Handler) RequestTopUp(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount        int64  `json:"amount"`
		PaymentMethod string `json:"payment_method"`
		Notes         string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}

	txID, err := h.Wallet.RequestTopUp(r.Context(), actor, req.Amount, req.PaymentMethod, req.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]int64{"transaction_id": txID})
}

// ReviewTopUp approves or rejects a pending top-up (admin only).
func (h *Handler) ReviewTopUp(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	txID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || txID < 1 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req struct {
		Approve bool `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}

	if err := h.Wallet.ReviewTopUp(r.Context(), actor, txID, req.Approve); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RequestWithdrawal debits the seller and records a pending payout.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}

	txID, err := h.Wallet.RequestWithdrawal(r.Context(), actor, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]int64{"transaction_id": txID})
}
