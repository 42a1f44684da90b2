// Package websocket tails the history service's snapshot stream.
//
// Dial connects to the server's /api/ws endpoint and decodes every text frame
// into a model.Snapshot. Snapshots are delivered in order on Snapshots(); the
// channel closes when the stream ends, after which Err reports why. Closing
// the client never waits on a consumer that stopped reading.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultPingPeriod   = 15 * time.Second
	defaultWriteTimeout = 5 * time.Second
	handshakeTimeout    = 10 * time.Second
	closeGrace          = 5 * time.Second

	// maxFrameSize bounds incoming frames. A full snapshot carries up to a few
	// thousand records.
	maxFrameSize = 8 << 20

	snapshotBuffer = 16
)

// ErrClosed is reported by Err when the stream was ended locally.
var ErrClosed = errors.New("snapshot stream closed")

// Handler turns one frame into zero or more snapshots.
type Handler func([]byte) ([]model.Snapshot, error)

// DecodeSnapshot is the Handler for frames produced by the history server:
// each frame is one JSON encoded snapshot.
func DecodeSnapshot(data []byte) ([]model.Snapshot, error) {
	var s model.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return []model.Snapshot{s}, nil
}

// Config holds the stream settings. Only Endpoint is required.
type Config struct {
	Endpoint        string        // ws:// or wss:// URL, including any buyers query
	Handler         Handler       // defaults to DecodeSnapshot
	TLSInsecureSkip bool          // skip certificate verification for wss
	PingPeriod      time.Duration // keepalive interval; the read deadline is twice this
	WriteTimeout    time.Duration // deadline for pings and the close frame
}

// Client is a connected snapshot stream.
type Client struct {
	cfg       Config
	conn      *websocket.Conn
	logger    zerolog.Logger
	snapshots chan model.Snapshot
	done      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// Dial connects to cfg.Endpoint and starts streaming. Cancelling ctx closes
// the client.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		cfg.Handler = DecodeSnapshot
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	logger := log.With().Str("component", "stream").Str("endpoint", cfg.Endpoint).Logger()

	conn, err := connect(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to snapshot stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:       cfg,
		conn:      conn,
		logger:    logger,
		snapshots: make(chan model.Snapshot, snapshotBuffer),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	conn.SetReadLimit(maxFrameSize)
	c.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	c.loops.Add(2)
	go c.receive()
	go c.keepAlive()
	// Close waits on loops, so the watcher stays outside of it.
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	logger.Info().Msg("snapshot stream connected")
	return c, nil
}

func connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: cfg.TLSInsecureSkip},
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.Endpoint, nil)
	if err != nil {
		event := logger.Error().Err(err)
		if resp != nil {
			event = event.Int("statusCode", resp.StatusCode)
		}
		event.Msg("snapshot stream handshake failed")
		return nil, err
	}
	return conn, nil
}

// Snapshots delivers decoded snapshots. It is closed when the stream ends.
func (c *Client) Snapshots() <-chan model.Snapshot {
	return c.snapshots
}

// Done is closed once the stream has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the stream ended: ErrClosed after Close or context
// cancellation, the read error otherwise. It is nil while the stream runs.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Client) extendReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(2 * c.cfg.PingPeriod)); err != nil {
		c.logger.Debug().Err(err).Msg("failed to extend read deadline")
	}
}

// receive reads frames until the connection fails or the client is closed.
func (c *Client) receive() {
	defer c.loops.Done()
	defer func() {
		close(c.snapshots)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}
		c.extendReadDeadline()

		for _, snapshot := range c.handle(data) {
			select {
			case c.snapshots <- snapshot:
			case <-c.ctx.Done():
				c.setErr(ErrClosed)
				return
			}
		}
	}
}

func (c *Client) readFailed(err error) {
	switch {
	case c.ctx.Err() != nil:
		c.setErr(ErrClosed)
		c.logger.Info().Msg("snapshot stream closed")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.setErr(err)
		c.logger.Info().Err(err).Msg("server ended the snapshot stream")
	default:
		c.setErr(err)
		c.logger.Error().Err(err).Msg("snapshot stream read failed")
	}
}

// handle runs the handler on one frame. Bad frames are logged and skipped.
func (c *Client) handle(data []byte) (snapshots []model.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Any("recover", r).Msg("snapshot handler panicked")
			snapshots = nil
		}
	}()

	snapshots, err := c.cfg.Handler(data)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("skipping undecodable frame")
		return nil
	}
	return snapshots
}

func (c *Client) keepAlive() {
	defer c.loops.Done()

	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Warn().Err(err).Msg("keepalive ping failed")
			}
		}
	}
}

// Close ends the stream and waits briefly for the read and keepalive loops.
// It may be called more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			c.logger.Debug().Err(err).Msg("failed to send close frame")
		}
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("failed to close connection")
		}

		stopped := make(chan struct{})
		go func() {
			c.loops.Wait()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(closeGrace):
			c.logger.Warn().Msg("stream loops did not stop in time")
		}
	})
}
