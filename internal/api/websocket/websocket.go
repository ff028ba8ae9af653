package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin ограничивает CORS на уровне роутера
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler обрабатывает WebSocket подключения
type Handler struct {
	manager *Manager
}

// NewHandler создает новый WebSocket handler
func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager: manager,
	}
}

// HandleWebSocket подписывает клиента на события.
// ?events=person_registered,person_recognized ограничивает рассылку.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.manager.log.WithError(err).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		Conn:   conn,
		Send:   make(chan Message, sendBuffer),
		Events: parseEvents(c.Query("events")),
	}

	h.manager.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump(h.manager)
}

func parseEvents(raw string) map[string]bool {
	events := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			events[name] = true
		}
	}
	return events
}
