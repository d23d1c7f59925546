package modelsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

func testChannelSettings() *ChannelSettings {
	settings := DefaultChannelSettings()
	settings.ReconnectTimeout = 20 * time.Millisecond
	return settings
}

func testWsUrl(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, condition func() bool) {
	for i := 0; i < 200; i += 1 {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out")
}

func TestChannelReceive(t *testing.T) {
	var locale atomic.Value
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale.Store(r.Header.Get("Accept-Language"))
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte{})
		ws.WriteMessage(websocket.TextMessage, []byte(`{"name": "a"}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"name": "b"}`))
		// hold the connection until the client leaves
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	channel := NewLiveChannel(
		context.Background(),
		ProjectChannelUrl(testWsUrl(server), 1),
		NewClientContext("de", ""),
		testChannelSettings(),
	)
	defer channel.Close()

	var stateLock sync.Mutex
	var frames []string
	channel.AddReceiveCallback(func(frame []byte) {
		stateLock.Lock()
		defer stateLock.Unlock()
		frames = append(frames, string(frame))
	})
	channel.Open()
	channel.Open()

	waitFor(t, func() bool {
		stateLock.Lock()
		defer stateLock.Unlock()
		return len(frames) == 2
	})
	stateLock.Lock()
	assert.Equal(t, frames, []string{`{"name": "a"}`, `{"name": "b"}`})
	stateLock.Unlock()
	assert.Equal(t, channel.IsConnected(), true)
	assert.Equal(t, channel.ConnectCount(), 1)
	assert.Equal(t, locale.Load(), "de")

	channel.Close()
	select {
	case <-channel.Done():
	case <-time.After(time.Second):
		t.Fatalf("channel did not close")
	}
}

func TestChannelReconnect(t *testing.T) {
	var connects atomic.Int64
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if connects.Add(1) == 1 {
			// drop the first connection
			ws.Close()
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	channel := NewLiveChannel(
		context.Background(),
		AdjustmentRunsChannelUrl(testWsUrl(server), 1),
		NewClientContext("en", ""),
		testChannelSettings(),
	)
	defer channel.Close()

	var disconnects atomic.Int64
	channel.AddConnectCallback(func(connected bool) {
		if !connected {
			disconnects.Add(1)
		}
	})
	channel.Open()

	waitFor(t, func() bool {
		return 2 <= channel.ConnectCount() && channel.IsConnected()
	})
	assert.Equal(t, 1 <= disconnects.Load(), true)
}
