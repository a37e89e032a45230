package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebsocketFeed follows another dashboard's event stream endpoint.
type WebsocketFeed struct {
	endpoint string
	header   http.Header
	dialer   *websocket.Dialer
	logger   *zap.SugaredLogger
}

func NewWebsocketFeed(endpoint string, header http.Header, logger *zap.SugaredLogger) *WebsocketFeed {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WebsocketFeed{endpoint: endpoint, header: header, dialer: &dialer, logger: logger}
}

func (f *WebsocketFeed) Open(ctx context.Context, filter Filter, onEvent func(Event)) (Channel, error) {
	target, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse websocket endpoint: %w", err)
	}
	query := target.Query()
	query.Set("kind", string(filter.Kind))
	if filter.ProjectID != "" {
		query.Set("project", filter.ProjectID)
	}
	target.RawQuery = query.Encode()

	conn, _, err := f.dialer.DialContext(ctx, target.String(), f.header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime websocket: %w", err)
	}

	ch := &websocketChannel{conn: conn, done: make(chan struct{})}
	go func() {
		defer close(ch.done)
		for {
			messageType, payload, readErr := conn.ReadMessage()
			if readErr != nil {
				if !ch.isClosing() && websocket.IsUnexpectedCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					f.logger.Warnf("realtime websocket closed unexpectedly: %v", readErr)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			ev, decodeErr := DecodeEvent(payload)
			if decodeErr != nil {
				f.logger.Debugf("dropping malformed websocket event: %v", decodeErr)
				continue
			}
			if filter.Matches(ev) {
				onEvent(ev)
			}
		}
	}()
	return ch, nil
}

type websocketChannel struct {
	conn    *websocket.Conn
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	closing bool
}

func (c *websocketChannel) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *websocketChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
		<-c.done
	})
	return err
}

const streamQueueSize = 64

var streamWriteTimeout = 10 * time.Second

// ErrSlowConsumer ends a stream whose client fell a full queue behind.
var ErrSlowConsumer = errors.New("realtime: stream client is not keeping up")

// Stream forwards every event matching filter from feed to conn until the
// client disconnects or ctx ends. Events are queued per stream and written
// by a single goroutine, so delivery never waits on the client's socket.
// A client that lets the queue fill is disconnected with ErrSlowConsumer.
func Stream(ctx context.Context, conn *websocket.Conn, feed Feed, filter Filter) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	queue := make(chan Event, streamQueueSize)
	send := func(ev Event) {
		select {
		case queue <- ev:
		default:
			cancel(ErrSlowConsumer)
		}
	}

	ch, err := feed.Open(ctx, filter, send)
	if err != nil {
		return err
	}
	defer ch.Close()

	// the client never sends anything meaningful; reading detects hangups
	go func() {
		defer cancel(nil)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-queue:
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					cancel(err)
					return
				}
			}
		}
	}()

	<-ctx.Done()
	<-writerDone
	if errors.Is(context.Cause(ctx), ErrSlowConsumer) {
		return ErrSlowConsumer
	}
	return nil
}
