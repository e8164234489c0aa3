package live

import (
	"net/http"

	ws "github.com/coder/websocket"

	"eventpulse/internal/logger"
)

// HandleHeatmap upgrades WS /ws/heatmap connections and runs them as
// hub clients until they disconnect.
func HandleHeatmap(hub *Hub, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // dashboards are served from a separate origin
		})
		if err != nil {
			log.Error("LIVE", "websocket accept: "+err.Error())
			return
		}

		log.Debug("LIVE", "heatmap client connected")
		client := NewClient(hub, conn)
		client.Run(r.Context())
		log.Debug("LIVE", "heatmap client disconnected")
	}
}
