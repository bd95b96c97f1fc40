package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func waitClients(t *testing.T, hub *Hub, ns string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients(ns) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestEmitIsScopedToNamespace(t *testing.T) {
	hub := startHub(t)
	alerts := NewClient(hub, nil, NamespaceAlerts)
	sensors := NewClient(hub, nil, NamespaceSensors)
	hub.RegisterClient(alerts)
	hub.RegisterClient(sensors)
	waitClients(t, hub, NamespaceAlerts, 1)
	waitClients(t, hub, NamespaceSensors, 1)

	hub.Emit(NamespaceAlerts, "alert", map[string]string{"machineId": "M-1001"})

	select {
	case msg := <-alerts.Send:
		var env struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, "alert", env.Type)
		assert.Equal(t, "M-1001", env.Payload["machineId"])
	case <-time.After(2 * time.Second):
		t.Fatal("alerts client got nothing")
	}

	select {
	case msg := <-sensors.Send:
		t.Fatalf("sensors client got %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)
	slow := &Client{Hub: hub, Namespace: NamespaceAlerts, Send: make(chan []byte)}
	hub.RegisterClient(slow)
	waitClients(t, hub, NamespaceAlerts, 1)

	hub.Emit(NamespaceAlerts, "alert", "x")
	waitClients(t, hub, NamespaceAlerts, 0)

	_, ok := <-slow.Send
	assert.False(t, ok)
}

func TestClientCountCallback(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	counts := make(chan int, 4)
	hub.OnClientCountChange(func(ns string, n int) {
		if ns == NamespaceSensors {
			counts <- n
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := NewClient(hub, nil, NamespaceSensors)
	hub.RegisterClient(c)
	assert.Equal(t, 1, <-counts)
}

func TestWebsocketRoundTrip(t *testing.T) {
	hub := startHub(t)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn, NamespaceAlerts)
		hub.RegisterClient(c)
		go c.WritePump()
		go c.ReadPump()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitClients(t, hub, NamespaceAlerts, 1)

	hub.Emit(NamespaceAlerts, "alert", map[string]string{"severity": "critical"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"alert","payload":{"severity":"critical"}}`, string(msg))

	conn.Close()
	waitClients(t, hub, NamespaceAlerts, 0)
}

func TestQueueBeforeRegister(t *testing.T) {
	hub := startHub(t)
	c := &Client{Hub: hub, Namespace: NamespaceAlerts, Send: make(chan []byte, 1)}
	require.NoError(t, c.Queue("history", []string{"a"}))
	assert.ErrorIs(t, c.Queue("history", nil), ErrBufferFull)

	var env struct {
		Type    string   `json:"type"`
		Payload []string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-c.Send, &env))
	assert.Equal(t, "history", env.Type)
	assert.Equal(t, []string{"a"}, env.Payload)
}
