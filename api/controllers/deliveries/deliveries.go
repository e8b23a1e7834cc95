package deliveries

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dormship-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/dormship-backend/api/responses"
	"github.com/angelmondragon/dormship-backend/api/validators"
	internaldeliveries "github.com/angelmondragon/dormship-backend/internal/deliveries"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

type createDeliveryRequest struct {
	StaffID   *uuid.UUID  `json:"staffId"`
	OrderIDs  []uuid.UUID `json:"orderIds" validate:"required,min=1"`
	TimeLimit *time.Time  `json:"timeLimit"`
}

type updateDeliveryRequest struct {
	OrderIDs  *[]uuid.UUID `json:"orderIds" validate:"omitempty,min=1"`
	TimeLimit *time.Time   `json:"timeLimit"`
}

type cancelDeliveryRequest struct {
	Reason      string  `json:"reason" validate:"required"`
	EvidenceURL string  `json:"evidenceUrl" validate:"required,url"`
	ReasonType  *string `json:"reasonType"`
}

// Create groups received orders into a pending delivery.
func Create(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createDeliveryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internaldeliveries.CreateInput{
			Actor:     actor,
			OrderIDs:  body.OrderIDs,
			TimeLimit: body.TimeLimit,
		}
		if body.StaffID != nil {
			input.StaffID = *body.StaffID
		}
		view, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func Detail(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func History(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		rows, err := svc.History(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// Update replaces the order set or time limit of a pending delivery.
func Update(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		var body updateDeliveryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Update(r.Context(), internaldeliveries.UpdateInput{
			DeliveryID: id,
			Actor:      actor,
			OrderIDs:   body.OrderIDs,
			TimeLimit:  body.TimeLimit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func Delete(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), internaldeliveries.ActionInput{DeliveryID: id, Actor: actor}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Accept moves a delivery and all of its orders into transport.
func Accept(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return action(svc, logg, internaldeliveries.Service.Accept)
}

// Finish closes a delivery once every order is settled.
func Finish(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return action(svc, logg, internaldeliveries.Service.Finish)
}

// Route re-sequences a delivery's orders through the routing service.
func Route(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return action(svc, logg, internaldeliveries.Service.Route)
}

// Cancel cancels the delivery and cascades to its unfinished orders.
func Cancel(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		var body cancelDeliveryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internaldeliveries.CancelInput{
			DeliveryID:  id,
			Actor:       actor,
			Reason:      validators.SanitizeString(body.Reason, 500),
			EvidenceURL: strings.TrimSpace(body.EvidenceURL),
		}
		if body.ReasonType != nil {
			reasonType, err := enums.ParseCancelReasonType(*body.ReasonType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason type"))
				return
			}
			input.ReasonType = reasonType
		}
		view, err := svc.Cancel(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Suggest returns candidate groupings for received orders in one dormitory
// and time slot.
func Suggest(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		date, err := validators.ParseQueryDate(r, "deliveryDate")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mode := enums.GroupingModeWeight
		if raw := strings.TrimSpace(query.Get("mode")); raw != "" {
			mode, err = enums.ParseGroupingMode(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid mode"))
				return
			}
		}
		maxWeight := decimal.Zero
		if raw := strings.TrimSpace(query.Get("maxWeight")); raw != "" {
			maxWeight, err = decimal.NewFromString(raw)
			if err != nil || !maxWeight.IsPositive() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "maxWeight must be a positive number").WithDetails(map[string]any{"field": "maxWeight"}))
				return
			}
		}

		result, err := svc.Suggest(r.Context(), internaldeliveries.SuggestInput{
			Actor:        actor,
			Dormitory:    strings.TrimSpace(query.Get("dormitory")),
			TimeSlot:     strings.TrimSpace(query.Get("timeSlot")),
			DeliveryDate: date,
			MaxWeight:    maxWeight,
			Mode:         mode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type actionFunc func(svc internaldeliveries.Service, ctx context.Context, input internaldeliveries.ActionInput) (*internaldeliveries.DeliveryView, error)

func action(svc internaldeliveries.Service, logg *logger.Logger, fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := fn(svc, r.Context(), internaldeliveries.ActionInput{DeliveryID: id, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func resolve(w http.ResponseWriter, r *http.Request, svc internaldeliveries.Service, logg *logger.Logger) (orders.Actor, uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
		return orders.Actor{}, uuid.Nil, false
	}
	actor, err := actorcontext.Resolve(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return orders.Actor{}, uuid.Nil, false
	}
	id, err := validators.ParseUUIDParam(r, "deliveryId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return orders.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
