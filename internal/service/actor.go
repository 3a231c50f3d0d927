package service

import (
	"fmt"
	"strconv"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
)

type ActorKind string

const (
	ActorCustomer ActorKind = "user"
	ActorOperator ActorKind = "operator"
	ActorSystem   ActorKind = "system"
	ActorGuest    ActorKind = "guest"
)

// Actor identifies who performs an operation. It is recorded in status
// history and payment/refund audit fields.
type Actor struct {
	Kind   ActorKind
	ID     string
	userID int64
}

func Customer(userID int64) Actor {
	return Actor{Kind: ActorCustomer, ID: strconv.FormatInt(userID, 10), userID: userID}
}

func Operator(id string) Actor {
	return Actor{Kind: ActorOperator, ID: id}
}

func System(name string) Actor {
	return Actor{Kind: ActorSystem, ID: name}
}

func Guest() Actor {
	return Actor{Kind: ActorGuest}
}

func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s:%s", a.Kind, a.ID)
}

func (a Actor) IsOperator() bool {
	return a.Kind == ActorOperator || a.Kind == ActorSystem
}

// UserID returns the customer id, if the actor is a signed-in customer.
func (a Actor) UserID() (int64, bool) {
	return a.userID, a.Kind == ActorCustomer
}

// canSee reports whether the actor may read or act on the order as its owner.
func (a Actor) canSee(o *models.Order) bool {
	if a.IsOperator() {
		return true
	}
	id, ok := a.UserID()
	return ok && o.OwnedBy(id)
}

func requireOperator(op string, a Actor) error {
	if !a.IsOperator() {
		return apperr.Policy(op, apperr.ReasonNotOwner, "operator access required")
	}
	return nil
}
