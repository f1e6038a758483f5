package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/cabinshare/internal/auth"
)

// HandleWebSocket upgrades authenticated requests and runs them as clients
// of the session's organization. originPatterns lists the hosts allowed to
// connect besides the request's own host.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || ac.OrganizationID == 0 {
			http.Error(w, `{"error":"no active organization"}`, http.StatusForbidden)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, ac.OrganizationID, ac.UserID)
		client.Run(r.Context())
	}
}
