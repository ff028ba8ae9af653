package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"face-registry/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Manager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Run(ctx)

	router := gin.New()
	router.GET("/ws", NewHandler(manager).HandleWebSocket)
	server := httptest.NewServer(router)

	// hub должен вернуть счетчик соединений до следующего теста
	t.Cleanup(func() {
		server.Close()
		cancel()
		select {
		case <-manager.done:
		case <-time.After(time.Second):
			t.Error("hub did not stop")
		}
	})
	return manager, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	base := testutil.ToFloat64(observability.WSConnections)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(observability.WSConnections) == base+1
	}, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestPublishReachesSubscriber(t *testing.T) {
	manager, url := startHub(t)
	conn := dial(t, url)

	manager.Publish("person_registered", map[string]int{"id": 1})

	msg := readMessage(t, conn)
	assert.Equal(t, "person_registered", msg.Type)
	assert.Equal(t, map[string]interface{}{"id": float64(1)}, msg.Payload)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestEventFilter(t *testing.T) {
	manager, url := startHub(t)
	conn := dial(t, url+"?events=person_recognized")

	manager.Publish("person_registered", nil)
	manager.Publish("person_recognized", map[string]int{"person_id": 7})

	msg := readMessage(t, conn)
	assert.Equal(t, "person_recognized", msg.Type)
}

func TestSequentialHubsKeepConnectionGauge(t *testing.T) {
	base := testutil.ToFloat64(observability.WSConnections)

	for i := 0; i < 3; i++ {
		t.Run("hub", func(t *testing.T) {
			_, url := startHub(t)
			dial(t, url)
		})
		assert.Equal(t, base, testutil.ToFloat64(observability.WSConnections))
	}
}

func TestParseEvents(t *testing.T) {
	assert.Empty(t, parseEvents(""))
	assert.Equal(t, map[string]bool{"a": true, "b": true}, parseEvents(" a, b ,"))
}

func TestPublishDoesNotBlockWithoutRun(t *testing.T) {
	manager := NewManager()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			manager.Publish("person_registered", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
}
