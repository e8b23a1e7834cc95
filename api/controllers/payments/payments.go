package payments

import (
	"net/http"

	"github.com/angelmondragon/dormship-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/dormship-backend/api/responses"
	"github.com/angelmondragon/dormship-backend/api/validators"
	internalpayments "github.com/angelmondragon/dormship-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

type createPaymentRequest struct {
	Amount *int64 `json:"amount" validate:"omitempty,gt=0"`
}

// Create opens a bank transfer attempt for an order. Omitting amount pays
// the remaining balance.
func Create(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createPaymentRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		checkout, err := svc.CreatePayment(r.Context(), internalpayments.CreatePaymentInput{
			Actor:   actor,
			OrderID: orderID,
			Amount:  body.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkout)
	}
}

// List returns every payment attempt recorded against an order.
func List(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views, err := svc.ListForOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}
