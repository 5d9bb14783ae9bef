package server

import (
	"context"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/asana/internal/app"
	"github.com/ayusman/asana/internal/game"
	"github.com/ayusman/asana/internal/metrics"
)

// WSConfig tunes the pose WebSocket.
type WSConfig struct {
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
}

func (c WSConfig) withDefaults() WSConfig {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
	return c
}

// maxCloseReason is the longest reason that fits a close frame.
const maxCloseReason = 123

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PoseHandler runs one game session per WebSocket connection.
type PoseHandler struct {
	orch    *app.Orchestrator
	cfg     WSConfig
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// NewPoseHandler creates a new PoseHandler.
func NewPoseHandler(o *app.Orchestrator, cfg WSConfig, m *metrics.Metrics, log logrus.FieldLogger) *PoseHandler {
	return &PoseHandler{orch: o, cfg: cfg.withDefaults(), metrics: m, log: log}
}

// poseClient is one connected player. The read loop owns the session; the
// write loop owns every write to conn.
type poseClient struct {
	conn *websocket.Conn
	cfg  WSConfig
	log  logrus.FieldLogger
	send chan game.Event
	done chan struct{}

	// closeErr is set before send is closed; non-nil means close with 1011.
	closeErr error
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (h *PoseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}

	connID := uuid.New().String()
	c := &poseClient{
		conn: conn,
		cfg:  h.cfg,
		log:  h.log.WithField("conn_id", connID),
		send: make(chan game.Event, 16),
		done: make(chan struct{}),
	}

	h.metrics.WebSocketOpened()
	defer h.metrics.WebSocketClosed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, started, err := h.orch.Open(ctx, connID)
	if err != nil {
		c.log.WithError(err).Error("failed to start session")
		c.closeErr = err
		close(c.send)
		c.writePump()
		return
	}
	c.log.WithField("remote", r.RemoteAddr).Info("pose client connected")

	go c.writePump()
	c.send <- started
	c.readPump(ctx, sess, h.metrics)

	close(c.send)
	<-c.done
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	sess.Close(closeCtx)
	c.log.Info("pose client disconnected")
}

// readPump processes inbound frames until the peer goes away, the writer
// fails, or the session store fails.
func (c *poseClient) readPump(ctx context.Context, sess *app.Session, m *metrics.Metrics) {
	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				m.IncrementWebSocketErrors()
				c.log.WithError(err).Warn("websocket read error")
			}
			return
		}
		m.IncrementWebSocketMessages()

		ev, err := sess.ProcessMessage(ctx, data)
		if err != nil {
			c.log.WithError(err).Error("closing connection")
			c.closeErr = err
			return
		}

		select {
		case c.send <- ev:
		case <-c.done:
			return
		}
	}
}

// writePump sends events and pings, and finally the close frame.
func (c *poseClient) writePump() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.writeClose()
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.WithError(err).Debug("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *poseClient) writeClose() {
	code, reason := websocket.CloseNormalClosure, ""
	if c.closeErr != nil {
		code, reason = websocket.CloseInternalServerErr, closeReason(c.closeErr)
	}
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.WithError(err).Debug("failed to send close frame")
	}
}

// closeReason returns err's text cut to fit a close frame without splitting a
// UTF-8 sequence.
func closeReason(err error) string {
	reason := err.Error()
	if len(reason) <= maxCloseReason {
		return reason
	}
	end := maxCloseReason
	for end > 0 && !utf8.RuneStart(reason[end]) {
		end--
	}
	return reason[:end]
}
