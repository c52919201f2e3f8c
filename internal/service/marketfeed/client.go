package marketfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"FinExec/internal/domain/models"
	drepo "FinExec/internal/domain/repository"
	"FinExec/pkg/logger"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("market feed not connected")

type Config struct {
	URL            string
	Token          string
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	BufferSize     int
}

// Client streams trade prints over a WebSocket. Frames look like
// {"type":"trade","data":[{"s":"BTCUSDT","p":50000,"v":0.1,"t":1728561600000}]}.
type Client struct {
	log *logger.Logger
	cfg Config

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
}

var _ drepo.MarketStream = (*Client)(nil)

func New(lgr *logger.Logger, cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	return &Client{log: lgr.With("market-feed"), cfg: cfg}
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse feed url: %w", err)
	}
	if c.cfg.Token != "" {
		q := u.Query()
		q.Set("token", c.cfg.Token)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("market feed connected", logger.String("host", u.Host))
	return nil
}

func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	for _, s := range c.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := map[string]string{"type": "subscribe", "symbol": strings.ToUpper(s)}
		if err := c.write(conn, func(w *websocket.Conn) error { return w.WriteJSON(msg) }); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("market feed subscribed", logger.Strings("symbols", c.cfg.Symbols))
	return nil
}

type wireTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"`
}

type wireMessage struct {
	Type string      `json:"type"`
	Data []wireTrade `json:"data"`
}

// Read streams trades until ctx is done or the connection fails. The error
// channel receives at most one error; both channels are closed on exit.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, c.cfg.BufferSize)
	errs := make(chan error, 1)

	conn := c.current()
	if conn == nil {
		errs <- ErrNotConnected
		close(errs)
		close(trades)
		return trades, errs
	}

	readCtx, stop := context.WithCancel(ctx)
	go c.pingLoop(readCtx, conn)
	go func() {
		<-readCtx.Done()
		// unblock ReadMessage on shutdown
		_ = conn.SetReadDeadline(time.Now())
	}()

	go func() {
		defer close(trades)
		defer close(errs)
		defer stop()
		dropped := 0
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.markDisconnected(conn)
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			var m wireMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			for _, d := range m.Data {
				t := &models.Trade{
					Symbol:    d.S,
					Price:     d.P,
					Volume:    d.V,
					Timestamp: time.UnixMilli(d.T).UTC(),
				}
				select {
				case trades <- t:
				default:
					dropped++
					if dropped%1000 == 1 {
						c.log.Warn("trade buffer full, dropping", logger.Int("dropped", dropped))
					}
				}
			}
		}
	}()
	return trades, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.write(conn, func(w *websocket.Conn) error {
				return w.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			})
			if err != nil {
				c.log.Debug("ping failed", logger.Error(err))
			}
		}
	}
}

func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = c.write(conn, func(w *websocket.Conn) error {
		return w.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	return conn.Close()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) markDisconnected(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.connected = false
	}
	c.mu.Unlock()
}

// gorilla connections allow one concurrent writer.
func (c *Client) write(conn *websocket.Conn, fn func(*websocket.Conn) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn(conn)
}
