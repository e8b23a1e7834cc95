package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/dormship-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/dormship-backend/api/responses"
	"github.com/angelmondragon/dormship-backend/api/validators"
	"github.com/angelmondragon/dormship-backend/internal/bans"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

// BanAdmin is the administrator surface of the ban policy engine.
type BanAdmin interface {
	Unban(ctx context.Context, input bans.UnbanInput) (*bans.StudentStanding, error)
	UpsertRegulation(ctx context.Context, input bans.RegulationInput) (*models.DormitoryRegulation, error)
	GetRegulation(ctx context.Context, role enums.UserRole, dormitory string) (*models.DormitoryRegulation, error)
}

type unbanRequest struct {
	Reactivate bool `json:"reactivate"`
}

type regulationRequest struct {
	BanThreshold int      `json:"banThreshold" validate:"required,gt=0"`
	TimeSlots    []string `json:"timeSlots"`
}

// AdminUnbanStudent forgives one fault and optionally reactivates the account.
func AdminUnbanStudent(svc BanAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ban service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		studentID, err := validators.ParseUUIDParam(r, "studentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body unbanRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		standing, err := svc.Unban(r.Context(), bans.UnbanInput{
			StudentID:  studentID,
			ActorRole:  actor.Role,
			Reactivate: body.Reactivate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, standing)
	}
}

func AdminGetRegulation(svc BanAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ban service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reg, err := svc.GetRegulation(r.Context(), actor.Role, chi.URLParam(r, "dormitory"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reg)
	}
}

// AdminPutRegulation replaces a dormitory's ban threshold and allowed slots.
func AdminPutRegulation(svc BanAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ban service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body regulationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reg, err := svc.UpsertRegulation(r.Context(), bans.RegulationInput{
			ActorRole:    actor.Role,
			Dormitory:    strings.TrimSpace(chi.URLParam(r, "dormitory")),
			BanThreshold: body.BanThreshold,
			TimeSlots:    body.TimeSlots,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reg)
	}
}
