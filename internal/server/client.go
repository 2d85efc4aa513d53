package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/omkar9814/fullstack-chat-app/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one live websocket connection belonging to a single user.
// Its read pump is the connection's actor: inbound events are handled
// sequentially in arrival order.
type Client struct {
	connId     string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerEvent
	stop       chan struct{}
	stopOnce   sync.Once
	createdAt  time.Time
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		connId:     uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
		createdAt:  time.Now(),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeEvent(evt)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var evt ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(ErrInvalidEvent(-1))
			continue
		}

		evt.client = c
		evt.UserId = c.user.Id
		evt.Timestamp = Now()

		c.dispatch(&evt)
	}
}

// dispatch routes one inbound event. Handlers run on the read pump so
// events from the same connection are processed in emission order.
func (c *Client) dispatch(evt *ClientEvent) {
	switch evt.Type {
	case EventNewMessage:
		c.chatServer.handleSendMessage(evt)
	case EventTyping, EventStopTyping:
		c.chatServer.handleTyping(evt)
	case EventReadReceipt:
		c.chatServer.handleRead(evt)
	case EventReactionUpdate:
		c.chatServer.handleReaction(evt)
	case EventMessageEdited:
		c.chatServer.handleEdit(evt)
	case EventMessageDeleted:
		c.chatServer.handleDelete(evt)
	case EventCallUser:
		c.chatServer.calls.handleCallUser(evt)
	case EventAnswerCall:
		c.chatServer.calls.handleAnswerCall(evt)
	case EventIceCandidate:
		c.chatServer.calls.handleCandidate(evt)
	case EventEndCall:
		c.chatServer.calls.handleEndCall(evt)
	case EventMissedCall:
		c.chatServer.calls.handleMissedCall(evt)
	default:
		c.log.Printf("unknown event type %q from user %d", evt.Type, c.user.Id)
		c.queueEvent(ErrInvalidEvent(evt.Id))
	}
}

func (c *Client) queueEvent(evt *ServerEvent) bool {
	select {
	case c.send <- evt:
	default:
		c.log.Println("failed to send event to client, channel is full")
		return false
	}

	return true
}

func serializeEvent(evt *ServerEvent) ([]byte, error) {
	return json.Marshal(evt)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// stopClient may be called from both the connection's own cleanup and
// the server loop (shutdown, superseded connection), so it is guarded.
func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.deRegisterChan <- c
	c.stopClient()
}
