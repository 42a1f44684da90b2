package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWebSocketServer is a snapshot stream server for tests.
type TestWebSocketServer struct {
	server      *httptest.Server
	upgrader    websocket.Upgrader
	mu          sync.Mutex
	connections []*websocket.Conn
	handlerFunc func(conn *websocket.Conn)
	reject      bool
}

func NewTestWebSocketServer(handler func(conn *websocket.Conn)) *TestWebSocketServer {
	ts := &TestWebSocketServer{
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		handlerFunc: handler,
	}
	ts.server = httptest.NewServer(http.HandlerFunc(ts.handleWebSocket))
	return ts
}

func (ts *TestWebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if ts.reject {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ts.mu.Lock()
	ts.connections = append(ts.connections, conn)
	ts.mu.Unlock()

	if ts.handlerFunc != nil {
		ts.handlerFunc(conn)
		return
	}
	// Keep the connection open until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (ts *TestWebSocketServer) URL() string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http")
}

func (ts *TestWebSocketServer) Close() {
	ts.mu.Lock()
	for _, c := range ts.connections {
		c.Close()
	}
	ts.mu.Unlock()
	ts.server.Close()
}

func testSnapshot(cycle string) model.Snapshot {
	bt := int64(1_700_000_000)
	buyer := "5tz5xFvHNnJViiCZ3iHdgqrTC1GfcEvnB49KoxvQpR3D"
	return model.Snapshot{
		CycleID: cycle,
		Records: []model.PurchaseRecord{
			{Signature: "sig1", BlockTime: &bt, Buyer: &buyer, TokenAmount: "10", Cost: "1.500000", Currency: model.CurrencyUSDC},
		},
		Stats:     model.Stats{TotalTransactions: 1, TotalPurchases: 1, TotalTokens: "10", TotalUSDC: "1.5", TotalSOL: "0", AveragePurchase: "10", Last24h: 0},
		UpdatedAt: time.Unix(1_700_000_100, 0).UTC(),
	}
}

func writeSnapshots(t *testing.T, snapshots ...model.Snapshot) func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		for _, s := range snapshots {
			data, err := json.Marshal(s)
			if !assert.NoError(t, err) {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func TestDial_Validation(t *testing.T) {
	tests := []struct {
		name          string
		config        Config
		errorContains string
	}{
		{
			name:          "missing endpoint",
			config:        Config{},
			errorContains: "endpoint URL is required",
		},
		{
			name:          "unreachable endpoint",
			config:        Config{Endpoint: "ws://127.0.0.1:1/api/ws"},
			errorContains: "failed to connect to snapshot stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := Dial(context.Background(), tt.config)

			require.Error(t, err)
			assert.Nil(t, client)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestDial_Rejected(t *testing.T) {
	ts := NewTestWebSocketServer(nil)
	ts.reject = true
	defer ts.Close()

	client, err := Dial(context.Background(), Config{Endpoint: ts.URL()})

	require.Error(t, err)
	assert.Nil(t, client)
}

func TestDial_Defaults(t *testing.T) {
	ts := NewTestWebSocketServer(nil)
	defer ts.Close()

	client, err := Dial(context.Background(), Config{Endpoint: ts.URL()})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, defaultPingPeriod, client.cfg.PingPeriod)
	assert.Equal(t, defaultWriteTimeout, client.cfg.WriteTimeout)
	assert.NotNil(t, client.cfg.Handler)
	assert.Equal(t, snapshotBuffer, cap(client.Snapshots()))
	assert.NoError(t, client.Err())
}

func TestClient_ReceivesSnapshots(t *testing.T) {
	ts := NewTestWebSocketServer(writeSnapshots(t, testSnapshot("c1"), testSnapshot("c2")))
	defer ts.Close()

	client, err := Dial(context.Background(), Config{Endpoint: ts.URL()})
	require.NoError(t, err)
	defer client.Close()

	for _, want := range []string{"c1", "c2"} {
		select {
		case s := <-client.Snapshots():
			assert.Equal(t, want, s.CycleID)
			require.Len(t, s.Records, 1)
			assert.Equal(t, model.CurrencyUSDC, s.Records[0].Currency)
			assert.Equal(t, "1.500000", s.Records[0].Cost)
			assert.Equal(t, "1.5", s.Stats.TotalUSDC)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestClient_InvalidFrameIsSkipped(t *testing.T) {
	ts := NewTestWebSocketServer(func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		writeSnapshots(t, testSnapshot("c1"))(conn)
	})
	defer ts.Close()

	client, err := Dial(context.Background(), Config{Endpoint: ts.URL()})
	require.NoError(t, err)
	defer client.Close()

	select {
	case s := <-client.Snapshots():
		assert.Equal(t, "c1", s.CycleID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestClient_HandlerPanicIsRecovered(t *testing.T) {
	ts := NewTestWebSocketServer(writeSnapshots(t, testSnapshot("c1"), testSnapshot("c2")))
	defer ts.Close()

	calls := 0
	handler := func(data []byte) ([]model.Snapshot, error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return DecodeSnapshot(data)
	}

	client, err := Dial(context.Background(), Config{Endpoint: ts.URL(), Handler: handler})
	require.NoError(t, err)
	defer client.Close()

	select {
	case s := <-client.Snapshots():
		assert.Equal(t, "c2", s.CycleID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestClient_ServerCloseSignalsDisconnect(t *testing.T) {
	ts := NewTestWebSocketServer(func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	})
	defer ts.Close()

	client, err := Dial(context.Background(), Config{Endpoint: ts.URL()})
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("end of stream not signalled")
	}

	assert.True(t, websocket.IsCloseError(client.Err(), websocket.CloseGoingAway))

	_, ok := <-client.Snapshots()
	assert.False(t, ok, "snapshot channel should be closed")
}

func TestClient_ContextCancelCloses(t *testing.T) {
	ts := NewTestWebSocketServer(nil)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := Dial(ctx, Config{Endpoint: ts.URL()})
	require.NoError(t, err)

	cancel()

	select {
	case <-client.Done():
	case <-time.After(6 * time.Second):
		t.Fatal("client did not stop after cancel")
	}
	assert.ErrorIs(t, client.Err(), ErrClosed)

	assert.NotPanics(t, func() {
		client.Close()
		client.Close()
	})
}

func TestClient_CloseWithUnreadSnapshots(t *testing.T) {
	frames := make([]model.Snapshot, snapshotBuffer+4)
	for i := range frames {
		frames[i] = testSnapshot(fmt.Sprintf("c%d", i))
	}
	ts := NewTestWebSocketServer(writeSnapshots(t, frames...))
	defer ts.Close()

	client, err := Dial(context.Background(), Config{Endpoint: ts.URL()})
	require.NoError(t, err)

	// Nobody reads: the buffer fills and the receiver blocks on delivery.
	require.Eventually(t, func() bool {
		return len(client.Snapshots()) == snapshotBuffer
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	client.Close()
	assert.Less(t, time.Since(start), closeGrace)

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not end after Close")
	}
	assert.ErrorIs(t, client.Err(), ErrClosed)

	drained := 0
	for range client.Snapshots() {
		drained++
	}
	assert.LessOrEqual(t, drained, len(frames))
}

func TestDecodeSnapshot(t *testing.T) {
	out, err := DecodeSnapshot([]byte(`{"cycleId":"abc","records":[],"stats":{"totalTransactions":0},"updatedAt":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "abc", out[0].CycleID)
	assert.Empty(t, out[0].Records)

	out, err = DecodeSnapshot([]byte(`[]`))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, strings.HasPrefix(err.Error(), "decode snapshot"))
	assert.False(t, errors.Is(err, ErrClosed))
}
