package chatws

import (
	"context"
	"encoding/json"
	"sync"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/services"
	"go.uber.org/zap"
)

const sendBufferLength = 32

type chatFeed interface {
	LoadHistory(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
	Subscribe(ctx context.Context, sessionID uuid.UUID) (*services.Subscription, error)
	SendMessage(ctx context.Context, callerID uuid.UUID, input services.SendMessageInput) (*models.Message, error)
}

// Conn is the subset of *websocket.Conn the client drives.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Frame is the envelope for every server to client message.
type Frame struct {
	Type     string           `json:"type"`
	Messages []models.Message `json:"messages,omitempty"`
	Message  *models.Message  `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type inboundFrame struct {
	Type    string  `json:"type"`
	Content string  `json:"content"`
	Kind    string  `json:"message_type"`
	FileURL *string `json:"file_url"`
}

// Client serves one viewer of one session's conversation.
type Client struct {
	conn      Conn
	feed      chatFeed
	userID    uuid.UUID
	sessionID uuid.UUID
	log       *zap.Logger

	send     chan []byte
	quit     chan struct{}
	quitOnce sync.Once
}

func NewClient(conn Conn, feed chatFeed, userID, sessionID uuid.UUID, log *zap.Logger) *Client {
	return &Client{
		conn:      conn,
		feed:      feed,
		userID:    userID,
		sessionID: sessionID,
		log:       log.With(zap.String("session_id", sessionID.String()), zap.String("user_id", userID.String())),
		send:      make(chan []byte, sendBufferLength),
		quit:      make(chan struct{}),
	}
}

// Serve sends the history frame, then streams live messages while relaying
// inbound sends. Reading starts first, so a disconnect cancels a history load
// or subscribe still in flight. It returns when the connection closes.
func (c *Client) Serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	inbound := make(chan []byte)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		c.readPump(ctx, inbound)
	}()
	defer func() {
		cancel()
		c.shutdown()
		<-readDone
	}()

	history, err := c.feed.LoadHistory(ctx, c.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("chat history load failed", zap.Error(err))
			_ = c.writeFrame(Frame{Type: "error", Error: "failed to load messages"})
		}
		return
	}

	sub, err := c.feed.Subscribe(ctx, c.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("chat subscribe failed", zap.Error(err))
			_ = c.writeFrame(Frame{Type: "error", Error: "failed to subscribe"})
		}
		return
	}

	timeline := services.NewTimeline(history)
	if err := c.writeFrame(Frame{Type: "history", Messages: timeline.Snapshot()}); err != nil {
		sub.Close()
		return
	}

	followDone := make(chan struct{})
	go func() {
		defer close(followDone)
		timeline.Follow(sub, func(message models.Message) {
			c.enqueue(Frame{Type: "message", Message: &message})
		})
		// A feed that ends on its own leaves the viewer without live updates;
		// closing makes the client reconnect and reload history.
		c.shutdown()
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump()
	}()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			sub.Close()
			<-followDone
			<-writeDone
			return
		case payload := <-inbound:
			c.handleInbound(ctx, payload)
		}
	}
}

// readPump hands raw frames to Serve until the connection fails.
func (c *Client) readPump(ctx context.Context, inbound chan<- []byte) {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case inbound <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleInbound(ctx context.Context, payload []byte) {
	var incoming inboundFrame
	if err := json.Unmarshal(payload, &incoming); err != nil {
		c.enqueue(Frame{Type: "error", Error: "invalid message payload"})
		return
	}
	if incoming.Type != "message" {
		c.enqueue(Frame{Type: "error", Error: "unsupported message type"})
		return
	}

	// The sent message reaches this client through the feed like any other.
	if _, err := c.feed.SendMessage(ctx, c.userID, services.SendMessageInput{
		SessionID: c.sessionID,
		Content:   incoming.Content,
		Type:      incoming.Kind,
		FileURL:   incoming.FileURL,
	}); err != nil {
		c.log.Warn("chat send failed", zap.Error(err))
		c.enqueue(Frame{Type: "error", Error: "failed to send message"})
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.quit:
			return
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

func (c *Client) enqueue(frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("chat frame encode failed", zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
	case <-c.quit:
	}
}

func (c *Client) writeFrame(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// shutdown stops outbound delivery and unblocks the reader.
func (c *Client) shutdown() {
	c.quitOnce.Do(func() {
		close(c.quit)
		_ = c.conn.Close()
	})
}
