package actorcontext

import (
	"net/http"

	"github.com/angelmondragon/dormship-backend/api/middleware"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
)

// Resolve builds the acting user from the authenticated request context.
func Resolve(r *http.Request) (orders.Actor, error) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	if !id.Role.IsValid() {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "role missing")
	}
	return orders.Actor{ID: id.UserID, Role: id.Role}, nil
}
