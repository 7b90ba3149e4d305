package service

import (
	"github.com/castlemarket/castle-market/internal/market/models"
)

// Actor is the strongly-typed identity every operation receives. It is
// supplied by the auth middleware and trusted verbatim.
type Actor struct {
	ID   int64
	Role models.Role
}

// transitions is the order lifecycle. Anything not listed is invalid.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:  {models.OrderAccepted, models.OrderCancelled},
	models.OrderAccepted: {models.OrderCompleted, models.OrderCancelled, models.OrderDisputed},
	models.OrderDisputed: {models.OrderCompleted, models.OrderCancelled},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another, ignoring actor permissions.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// cancellable statuses. Completed and cancelled are terminal; disputed
// orders resolve through dispute resolution, not plain cancellation.
var cancellableFrom = []models.OrderStatus{models.OrderPending, models.OrderAccepted}

// Cancellable reports whether an order in the given status may be cancelled.
func Cancellable(status models.OrderStatus) bool {
	for _, s := range cancellableFrom {
		if s == status {
			return true
		}
	}
	return false
}

// CanCancel reports whether the actor is allowed to cancel the order: an
// admin, the owning customer, or the assigned seller.
func CanCancel(actor Actor, o *models.Order) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return o.CustomerID == actor.ID
	case models.RoleSeller:
		return o.SellerID != nil && *o.SellerID == actor.ID
	}
	return false
}
