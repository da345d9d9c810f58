package netsync

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/lockstep-sim/lockstep/internal/snapshot"
)

// wireEvent is the message shape producers send. The sender identity
// comes from the connection, not the message, so a producer cannot
// speak for another.
type wireEvent struct {
	Seq      int64           `json:"seq"`
	OrderKey int64           `json:"order_key"`
	Payload  json.RawMessage `json:"payload"`
}

// Handler upgrades HTTP requests to WebSocket event feeds into a
// Collector. Mount it on a mux at the path of your choosing; producers
// connect with ?sender=<id>.
type Handler struct {
	collector *Collector
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

// NewHandler wires a handler to a collector.
func NewHandler(c *Collector, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		collector: c,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")
	if sender == "" {
		http.Error(w, "missing sender", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "sender", sender, "error", err)
		return
	}
	defer conn.Close()

	h.log.Info("producer connected", "sender", sender)
	for {
		var msg wireEvent
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("producer connection lost", "sender", sender, "error", err)
			} else {
				h.log.Info("producer disconnected", "sender", sender)
			}
			return
		}

		payload, err := decodePayload(msg.Payload)
		if err != nil {
			h.log.Warn("discarding malformed event payload",
				"sender", sender, "seq", msg.Seq, "error", err)
			continue
		}
		h.collector.Offer(snapshot.NetEvent{
			Sender:   sender,
			Seq:      msg.Seq,
			OrderKey: msg.OrderKey,
			Payload:  payload,
		})
	}
}
