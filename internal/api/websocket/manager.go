package websocket

import (
	"context"
	"encoding/json"
	"time"

	"face-registry/internal/logger"
	"face-registry/internal/observability"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Message - событие реестра для подписчиков
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client представляет WebSocket клиента
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan Message
	// Events - на какие события подписан клиент, пусто - на все
	Events map[string]bool
}

func (c *Client) wants(event string) bool {
	return len(c.Events) == 0 || c.Events[event]
}

// Manager рассылает события реестра подключенным клиентам
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	log        *log.Entry
}

// NewManager создает новый WebSocket manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
		log:        logger.Component("websocket"),
	}
}

// Run обслуживает клиентов до отмены контекста (должен работать в отдельной горутине)
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			for _, client := range m.clients {
				m.drop(client)
			}
			return

		case client := <-m.register:
			m.clients[client.ID] = client
			observability.WSConnections.Inc()
			m.log.Infof("🔌 Клиент %s подключен", client.ID)

		case client := <-m.unregister:
			if _, ok := m.clients[client.ID]; ok {
				m.drop(client)
				m.log.Infof("Клиент %s отключен", client.ID)
			}

		case message := <-m.broadcast:
			for _, client := range m.clients {
				if !client.wants(message.Type) {
					continue
				}
				select {
				case client.Send <- message:
				default:
					// медленный клиент
					m.drop(client)
				}
			}
		}
	}
}

func (m *Manager) drop(client *Client) {
	delete(m.clients, client.ID)
	close(client.Send)
	observability.WSConnections.Dec()
}

// RegisterClient регистрирует нового клиента
func (m *Manager) RegisterClient(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		close(client.Send)
	}
}

// UnregisterClient отключает клиента
func (m *Manager) UnregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Publish ставит событие в очередь рассылки. Никогда не блокирует вызывающего.
func (m *Manager) Publish(event string, payload interface{}) {
	select {
	case m.broadcast <- Message{Type: event, Payload: payload, Timestamp: time.Now().UTC()}:
	default:
		m.log.Warnf("⚠️  Очередь событий переполнена, событие %s отброшено", event)
	}
}

// ReadPump читает сообщения от клиента, нужен для pong и закрытия соединения
func (c *Client) ReadPump(manager *Manager) {
	defer func() {
		manager.UnregisterClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				manager.log.WithError(err).Warn("WebSocket error")
			}
			return
		}
	}
}

// WritePump отправляет сообщения клиенту и держит соединение пингами
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
