package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/dormship-backend/api/responses"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/payos"
)

const maxWebhookBytes = 64 << 10

// PayOSReconciler applies verified gateway callbacks.
type PayOSReconciler interface {
	HandleWebhook(ctx context.Context, webhook payos.Webhook) (string, error)
}

type ack struct {
	Success bool `json:"success"`
}

// PayOS acknowledges every callback with 200 so the gateway stops retrying.
// The reconciler logs rejected or failed callbacks itself.
func PayOS(svc PayOSReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer func() {
			io.Copy(io.Discard, r.Body)
		}()

		var webhook payos.Webhook
		if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBytes)).Decode(&webhook); err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "payos.webhook.undecodable")
			}
			responses.WriteSuccess(w, ack{Success: true})
			return
		}
		if svc == nil {
			if logg != nil {
				logg.Warn(ctx, "payos.webhook.no_reconciler")
			}
			responses.WriteSuccess(w, ack{Success: true})
			return
		}

		outcome, err := svc.HandleWebhook(ctx, webhook)
		if err == nil && logg != nil {
			logg.Debug(logg.WithField(ctx, "outcome", outcome), "payos.webhook.handled")
		}
		responses.WriteSuccess(w, ack{Success: true})
	}
}
