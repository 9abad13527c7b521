package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
)

// Transcript message types sent by the transcription server.
const (
	TypePartial = "partial"
	TypeFinal   = "final"
	TypeError   = "error"
)

// DefaultSTTURL is the local streaming transcription endpoint.
const DefaultSTTURL = "ws://127.0.0.1:2700/transcribe"

// Transcript is one message from the transcription server.
type Transcript struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServerError is an error reported by the transcription server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "listen: server error: " + e.Message
}

// WSConfig configures a WSListener.
type WSConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// ReadTimeout bounds the wait for a single message. Zero waits forever.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Header      http.Header   `yaml:"-"`
}

// DefaultWSConfig returns the local server defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		URL:              DefaultSTTURL,
		HandshakeTimeout: 10 * time.Second,
	}
}

// WSListener reads final transcripts from a streaming transcription server.
// The connection is dialed lazily and redialed after a read failure.
type WSListener struct {
	config WSConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWSListener creates a listener for the given server.
func NewWSListener(cfg WSConfig, logger *slog.Logger) *WSListener {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultWSConfig().HandshakeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSListener{
		config: cfg,
		logger: logger.With("component", "listen.ws"),
	}
}

func (l *WSListener) connect(ctx context.Context) (*websocket.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if l.conn != nil {
		return l.conn, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: l.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, l.config.URL, l.config.Header)
	if err != nil {
		return nil, fmt.Errorf("listen: dial %s: %w", l.config.URL, err)
	}
	l.logger.Info("connected to transcription server", "url", l.config.URL)
	l.conn = conn
	return conn, nil
}

func (l *WSListener) drop(conn *websocket.Conn) {
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
	conn.Close()
}

// Listen returns the next final transcript, skipping partial results.
func (l *WSListener) Listen(ctx context.Context) (string, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return "", err
	}

	// Unblock the read when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		if l.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(l.config.ReadTimeout))
		}

		var msg Transcript
		if err := conn.ReadJSON(&msg); err != nil {
			l.drop(conn)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if l.isClosed() {
				return "", ErrClosed
			}
			return "", fmt.Errorf("listen: read: %w", err)
		}

		switch msg.Type {
		case TypeFinal:
			return Normalize(msg.Text), nil
		case TypeError:
			return "", &ServerError{Message: msg.Error}
		default:
			// partial or unknown
		}
	}
}

func (l *WSListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close closes the connection. Further Listen calls return ErrClosed.
func (l *WSListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.conn == nil {
		return nil
	}
	werr := l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if errors.Is(werr, websocket.ErrCloseSent) {
		werr = nil
	}
	err := multierr.Append(werr, l.conn.Close())
	l.conn = nil
	return err
}

var (
	_ Listener = (*WSListener)(nil)
	_ Listener = (*LineListener)(nil)
)
