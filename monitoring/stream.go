package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cytodx/errdefs"
	"cytodx/serving"
)

type MessageType string

const (
	MsgPrediction  MessageType = "prediction"
	MsgError       MessageType = "error"
	MsgModelLoaded MessageType = "model_loaded"
)

// Message is every frame the stream sends. ID echoes the request id when there is one.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// StreamRequest is one inbound frame.
type StreamRequest struct {
	ID string `json:"id,omitempty"`
	serving.Request
}

type ModelEvent struct {
	Version   string  `json:"version"`
	Algorithm string  `json:"algorithm"`
	Accuracy  float64 `json:"accuracy"`
}

// PredictorSource yields the predictor to use for each request.
type PredictorSource interface {
	Current() (*serving.Predictor, error)
}

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.quit) })
}

// Stream answers prediction requests over websocket connections and broadcasts model
// changes to every connected client. Replies on one connection keep request order.
type Stream struct {
	source   PredictorSource
	metrics  *Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
}

func NewStream(source PredictorSource, metrics *Metrics, logger *zap.Logger, allowedOrigins []string) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		source:  source,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done. It must be running before connections are
// accepted.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case c := <-s.register:
			s.clients[c] = true
			s.metrics.ClientConnected()
			s.logger.Debug("stream client connected", zap.String("client", c.id), zap.Int("clients", len(s.clients)))

		case c := <-s.unregister:
			if s.clients[c] {
				delete(s.clients, c)
				c.stop()
				s.metrics.ClientDisconnected()
				s.logger.Debug("stream client disconnected", zap.String("client", c.id), zap.Int("clients", len(s.clients)))
			}

		case msg := <-s.broadcast:
			for c := range s.clients {
				select {
				case c.send <- msg:
				default:
					s.logger.Warn("stream client too slow, dropping broadcast", zap.String("client", c.id))
				}
			}

		case <-ctx.Done():
			for c := range s.clients {
				delete(s.clients, c)
				c.stop()
				s.metrics.ClientDisconnected()
			}
			return
		}
	}
}

// ServeHTTP upgrades the request and serves predictions on the connection.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		quit: make(chan struct{}),
	}
	select {
	case s.register <- c:
	case <-s.done:
		conn.Close()
		return
	}
	go s.writePump(c)
	go s.readPump(c)
}

// ModelLoaded tells every connected client which model now answers.
func (s *Stream) ModelLoaded(p *serving.Predictor) {
	meta := p.Metadata()
	data, _ := json.Marshal(ModelEvent{
		Version:   p.Version(),
		Algorithm: string(meta.Algorithm),
		Accuracy:  meta.Metrics.Accuracy,
	})
	frame, _ := json.Marshal(Message{Type: MsgModelLoaded, Timestamp: time.Now().UTC(), Data: data})
	select {
	case s.broadcast <- frame:
	case <-s.done:
	default:
		s.logger.Warn("stream broadcast queue full, dropping model event")
	}
}

func (s *Stream) readPump(c *client) {
	defer func() {
		select {
		case s.unregister <- c:
		case <-s.done:
		}
		c.stop()
	}()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("stream read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		reply, err := json.Marshal(s.handle(raw))
		if err != nil {
			s.logger.Error("encode stream reply", zap.Error(err))
			return
		}
		select {
		case c.send <- reply:
		case <-c.quit:
			return
		}
	}
}

func (s *Stream) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Stream) handle(raw []byte) Message {
	reply := Message{Type: MsgError, Timestamp: time.Now().UTC()}
	var req StreamRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.metrics.ObservePredictionError("decode")
		reply.Error = "invalid request: " + err.Error()
		return reply
	}
	reply.ID = req.ID

	predictor, err := s.source.Current()
	if err != nil {
		s.metrics.ObservePredictionError(ErrorReason(err))
		reply.Error = err.Error()
		return reply
	}
	pred, err := predictor.Serve(req.Request)
	if err != nil {
		s.metrics.ObservePredictionError(ErrorReason(err))
		reply.Error = err.Error()
		return reply
	}
	s.metrics.ObservePrediction(pred.Label.String())
	reply.Type = MsgPrediction
	reply.Data, _ = json.Marshal(pred)
	return reply
}

// ErrorReason maps an error to a low-cardinality metric label.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, errdefs.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, errdefs.ErrArtifactNotFound):
		return "no_model"
	default:
		return "internal"
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
