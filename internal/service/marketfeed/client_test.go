package marketfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FinExec/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedServer accepts one connection, records subscriptions and replays frames.
func feedServer(t *testing.T, frames []string, subs chan<- map[string]string, token *string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*token = r.URL.Query().Get("token")
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subs <- msg
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_StreamsTrades(t *testing.T) {
	subs := make(chan map[string]string, 1)
	var token string
	srv := feedServer(t, []string{
		`{"type":"ping"}`,
		`not json`,
		`{"type":"trade","data":[{"s":"BTCUSDT","p":50000.5,"v":0.2,"t":1728561600000},{"s":"BTCUSDT","p":50001,"v":0.1,"t":1728561601000}]}`,
	}, subs, &token)

	c := New(logger.NewNop(), Config{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:   "secret",
		Symbols: []string{"btcusdt"},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())

	sub := <-subs
	assert.Equal(t, map[string]string{"type": "subscribe", "symbol": "BTCUSDT"}, sub)
	assert.Equal(t, "secret", token)

	trades, _ := c.Read(ctx)
	first := <-trades
	require.NotNil(t, first)
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Equal(t, 50000.5, first.Price)
	assert.Equal(t, time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC), first.Timestamp)
	second := <-trades
	assert.Equal(t, 50001.0, second.Price)

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestClient_NotConnected(t *testing.T) {
	c := New(logger.NewNop(), Config{URL: "ws://127.0.0.1:1"})
	assert.ErrorIs(t, c.Subscribe(context.Background()), ErrNotConnected)

	trades, errs := c.Read(context.Background())
	assert.ErrorIs(t, <-errs, ErrNotConnected)
	_, open := <-trades
	assert.False(t, open)
}

func TestClient_ReadReportsDisconnect(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	c := New(logger.NewNop(), Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, c.Connect(context.Background()))

	_, errs := c.Read(context.Background())
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "feed read")
	case <-time.After(5 * time.Second):
		t.Fatal("no error after server closed the connection")
	}
	assert.False(t, c.IsConnected())
}
