package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dormship-backend/api/middleware"
	"github.com/angelmondragon/dormship-backend/api/responses"
	"github.com/angelmondragon/dormship-backend/api/validators"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/pagination"
)

// inboxHandler resolves the caller and hands the request to fn. Whatever fn
// returns is written as the success body; errors go through WriteError.
func inboxHandler(svc notifications.Service, logg *logger.Logger, fn func(r *http.Request, owner uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		id, ok := middleware.IdentityFrom(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		body, err := fn(r, id.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, body)
	}
}

// ListNotifications returns the caller's inbox, newest first.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, owner uuid.UUID) (any, error) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unreadOnly")
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), notifications.ListParams{
			UserID:     owner,
			Limit:      limit,
			Cursor:     strings.TrimSpace(r.URL.Query().Get("cursor")),
			UnreadOnly: unreadOnly,
		})
	})
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, owner uuid.UUID) (any, error) {
		id, err := validators.ParseUUIDParam(r, "notificationId")
		if err != nil {
			return nil, err
		}
		if err := svc.MarkRead(r.Context(), owner, id); err != nil {
			return nil, err
		}
		return map[string]bool{"read": true}, nil
	})
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, owner uuid.UUID) (any, error) {
		n, err := svc.MarkAllRead(r.Context(), owner)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"updated": n}, nil
	})
}
