package push

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rmarinho/convo/internal/bus"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 45 * time.Second
)

// Listener owns the websocket connection to the push gateway. Frames
// are parsed and republished on the bus under the "push." namespace;
// the connection is re-dialed with capped exponential backoff.
type Listener struct {
	url    string
	token  string
	bus    *bus.Bus
	log    *zap.Logger
	dialer *websocket.Dialer
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a listener for the given websocket URL.
func NewListener(url, token string, b *bus.Bus, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		url:    url,
		token:  token,
		bus:    b,
		log:    log,
		dialer: websocket.DefaultDialer,
	}
}

// Start launches the connect loop.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx)
}

// Stop tears the connection down and waits for the loop to exit.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	backoff := reconnectMin
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := l.dial(ctx)
		if err != nil {
			l.log.Warn("push dial failed", zap.String("url", l.url), zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectMin
		l.publish(bus.KindPushConnected, nil)
		l.readLoop(ctx, conn)
		l.publish(bus.KindPushDisconnected, nil)
	}
}

func (l *Listener) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}
	conn, resp, err := l.dialer.DialContext(ctx, l.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(10 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-stop:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				l.log.Warn("push read failed", zap.Error(err))
			}
			return
		}
		kind, payload, err := ParseFrame(data)
		if err != nil {
			l.log.Debug("push frame skipped", zap.Error(err))
			continue
		}
		l.publish(kind, payload)
	}
}

func (l *Listener) publish(kind string, payload any) {
	l.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
