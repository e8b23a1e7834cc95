package outbox

import (
	"strings"

	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

// Router maps event types to Pub/Sub topics. Notification events feed the
// push channel; everything else goes to the domain topic.
type Router struct {
	notifications string
	domain        string
}

func NewRouter(cfg config.PubSubConfig) Router {
	return Router{
		notifications: strings.TrimSpace(cfg.NotificationTopic),
		domain:        strings.TrimSpace(cfg.DomainTopic),
	}
}

func (r Router) Topic(eventType enums.OutboxEventType) string {
	if eventType == enums.EventNotificationCreated {
		return r.notifications
	}
	return r.domain
}

// Topics lists the distinct non-empty topics the router can return.
func (r Router) Topics() []string {
	var out []string
	for _, t := range []string{r.notifications, r.domain} {
		if t != "" && (len(out) == 0 || out[0] != t) {
			out = append(out, t)
		}
	}
	return out
}
