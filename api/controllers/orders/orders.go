package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dormship-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/dormship-backend/api/responses"
	"github.com/angelmondragon/dormship-backend/api/validators"
	internalorders "github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/pagination"
)

const maxReasonLength = 500

type createOrderRequest struct {
	CheckCode     string          `json:"checkCode" validate:"required,max=64"`
	Brand         string          `json:"brand" validate:"required,max=64"`
	Weight        decimal.Decimal `json:"weight" validate:"gt=0"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,oneof=CASH BANK_TRANSFER"`
	DeliveryDate  *string         `json:"deliveryDate"`
	TimeSlot      *string         `json:"timeSlot"`
	Dormitory     *string         `json:"dormitory"`
	Building      *string         `json:"building"`
	Room          *string         `json:"room"`
	Phone         *string         `json:"phone"`
}

type statusRequest struct {
	Status      string  `json:"status" validate:"required"`
	Reason      *string `json:"reason"`
	ReasonType  *string `json:"reasonType"`
	EvidenceURL *string `json:"evidenceUrl" validate:"omitempty,url"`
}

type cancelRequest struct {
	Reason      string `json:"reason" validate:"required"`
	ReasonType  string `json:"reasonType" validate:"required"`
	EvidenceURL string `json:"evidenceUrl" validate:"required,url"`
}

type delayRequest struct {
	OrderIDs     []uuid.UUID `json:"orderIds" validate:"required,min=1"`
	DeliveryDate string      `json:"deliveryDate" validate:"required"`
	TimeSlot     string      `json:"timeSlot" validate:"required"`
}

// Create registers a parcel or claims a pre-registered one.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(body.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}
		deliveryDate, err := parseOptionalDate(body.DeliveryDate, "deliveryDate")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), internalorders.CreateInput{
			Actor:         actor,
			CheckCode:     validators.SanitizeString(body.CheckCode, 64),
			Brand:         validators.SanitizeString(body.Brand, 64),
			Weight:        body.Weight,
			PaymentMethod: method,
			DeliveryDate:  deliveryDate,
			TimeSlot:      body.TimeSlot,
			Dormitory:     body.Dormitory,
			Building:      body.Building,
			Room:          body.Room,
			Phone:         body.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Merged {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// List pages a student's orders. Staff and admins pass studentId.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		studentID := actor.ID
		if raw := strings.TrimSpace(r.URL.Query().Get("studentId")); raw != "" {
			studentID, err = uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid studentId"))
				return
			}
		} else if actor.Role != enums.UserRoleStudent {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "studentId is required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForStudent(r.Context(), actor, studentID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order with its current status.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := svc.Get(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// History returns the order's status ledger, oldest first.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		rows, err := svc.History(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// UpdateStatus applies one lifecycle transition.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		input := internalorders.TransitionInput{
			OrderID:     orderID,
			Actor:       actor,
			Status:      status,
			EvidenceURL: body.EvidenceURL,
		}
		if body.Reason != nil {
			reason := validators.SanitizeString(*body.Reason, maxReasonLength)
			input.Reason = &reason
		}
		if body.ReasonType != nil {
			reasonType, err := enums.ParseCancelReasonType(*body.ReasonType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason type"))
				return
			}
			input.ReasonType = &reasonType
		}

		view, err := svc.UpdateStatus(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Cancel cancels an order with a reason and evidence.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		var body cancelRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reasonType, err := enums.ParseCancelReasonType(body.ReasonType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason type"))
			return
		}
		view, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID:     orderID,
			Actor:       actor,
			ReasonType:  reasonType,
			Reason:      validators.SanitizeString(body.Reason, maxReasonLength),
			EvidenceURL: strings.TrimSpace(body.EvidenceURL),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Delay reschedules several orders together.
func Delay(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body delayRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		date, err := parseOptionalDate(&body.DeliveryDate, "deliveryDate")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views, err := svc.Delay(r.Context(), internalorders.DelayInput{
			Actor:        actor,
			OrderIDs:     body.OrderIDs,
			DeliveryDate: *date,
			TimeSlot:     body.TimeSlot,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}

func resolve(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (internalorders.Actor, uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return internalorders.Actor{}, uuid.Nil, false
	}
	actor, err := actorcontext.Resolve(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.Actor{}, uuid.Nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.Actor{}, uuid.Nil, false
	}
	return actor, orderID, true
}

// parseOptionalDate accepts YYYY-MM-DD or RFC3339.
func parseOptionalDate(raw *string, field string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid date").WithDetails(map[string]any{"field": field})
}
