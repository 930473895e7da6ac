package adminws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesConnectedSubscriber(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let the server-side goroutine register the subscriber

	hub.Publish(Event{Kind: "device", Name: "dev-1", Phase: "Connected", Timestamp: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Equal(t, "device", got.Kind)
	require.Equal(t, "dev-1", got.Name)
	require.Equal(t, "Connected", got.Phase)
}

func TestPublishWithNoSubscribersIsANoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Publish(Event{Kind: "application", Name: "app-1", Phase: "Running"})
}
