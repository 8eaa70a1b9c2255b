package ws

import (
	"net/http"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
)

// HandlerConfig configures the websocket upgrade.
type HandlerConfig struct {
	// OriginPatterns lists the hosts allowed to open websockets, see
	// websocket.AcceptOptions.
	OriginPatterns []string `env:"ORIGIN_PATTERNS" default:"*"`
}

// Handler upgrades requests to websockets. Authenticated callers, identified
// by an outer middleware, are subscribed to their user channel right away;
// everybody is subscribed to the catalog.
func Handler(hub *Hub, cfg HandlerConfig) http.Handler {
	log := logging.GetLogger("infra.transport.ws.handler")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		//nolint:exhaustruct
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.WarnContext(r.Context(), "accept failed", "error", err)

			return
		}

		principal, _ := context_.PrincipalFromContext(r.Context())

		client := NewClient(hub, conn, principal.UserID)
		client.Subscribe(ChannelCatalog)

		if principal.UserID != uuid.Nil {
			client.Subscribe(UserChannel(principal.UserID))
		}

		client.Serve(r.Context())
	})
}
