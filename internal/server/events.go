package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/omkar9814/fullstack-chat-app/internal/types"
)

// Event types exchanged over the websocket. Client-origin events carry
// a destination in their payload; server-origin events carry the origin.
const (
	EventOnlineUsers    = "getOnlineUsers"
	EventNewMessage     = "newMessage"
	EventTyping         = "typing"
	EventStopTyping     = "stopTyping"
	EventReadReceipt    = "readReceipt"
	EventReactionUpdate = "reactionUpdate"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventCallUser       = "callUser"
	EventAnswerCall     = "answerCall"
	EventIceCandidate   = "iceCandidate"
	EventEndCall        = "endCall"
	EventMissedCall     = "missedCall"
	EventError          = "error"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientEvent struct {
	BaseEvent
	Type        string         `json:"type"`
	SendMessage *SendMessage   `json:"send_message,omitempty"`
	Typing      *Typing        `json:"typing,omitempty"`
	Read        *ReadMark      `json:"read,omitempty"`
	Reaction    *Reaction      `json:"reaction,omitempty"`
	Edit        *MessageEdit   `json:"edit,omitempty"`
	Delete      *MessageDelete `json:"delete,omitempty"`
	Call        *CallRequest   `json:"call,omitempty"`
	Answer      *CallAnswer    `json:"answer,omitempty"`
	Candidate   *CallCandidate `json:"candidate,omitempty"`
	HangUp      *CallHangUp    `json:"hang_up,omitempty"`
	Missed      *MissedCall    `json:"missed,omitempty"`
	UserId      int            `json:"-"`
	client      *Client
}

type SendMessage struct {
	ReceiverId int    `json:"receiver_id"`
	Text       string `json:"text,omitempty"`
	Image      string `json:"image,omitempty"`
	Video      string `json:"video,omitempty"`
}

// Typing is used in both directions: inbound it names the counterpart,
// outbound it names the sender.
type Typing struct {
	ReceiverId int `json:"receiver_id,omitempty"`
	SenderId   int `json:"sender_id,omitempty"`
}

type ReadMark struct {
	MessageId string `json:"message_id"`
	UserId    int    `json:"user_id,omitempty"`
}

// Reaction is both the inbound toggle request and the outbound delta.
// An empty outbound token means the user's reaction was removed.
type Reaction struct {
	MessageId string `json:"message_id"`
	UserId    int    `json:"user_id,omitempty"`
	Reaction  string `json:"reaction"`
}

type MessageEdit struct {
	MessageId string `json:"message_id"`
	Text      string `json:"text"`
}

type MessageDelete struct {
	MessageId string `json:"message_id"`
}

type CallRequest struct {
	To       int             `json:"to"`
	Offer    json.RawMessage `json:"offer"`
	CallType string          `json:"call_type"`
}

type CallAnswer struct {
	To     int             `json:"to,omitempty"`
	Answer json.RawMessage `json:"answer"`
}

type CallCandidate struct {
	To        int             `json:"to,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallHangUp struct {
	To int `json:"to"`
}

type ServerEvent struct {
	BaseEvent
	Type        string         `json:"type"`
	OnlineUsers []int          `json:"online_users,omitempty"`
	Message     *types.Message `json:"message,omitempty"`
	MessageId   string         `json:"message_id,omitempty"`
	Typing      *Typing        `json:"typing,omitempty"`
	Receipt     *ReadMark      `json:"receipt,omitempty"`
	Reaction    *Reaction      `json:"reaction,omitempty"`
	Call        *IncomingCall  `json:"call,omitempty"`
	Answer      *CallAnswer    `json:"answer,omitempty"`
	Candidate   *CallCandidate `json:"candidate,omitempty"`
	Missed      *MissedCall    `json:"missed,omitempty"`
	Response    *Response      `json:"response,omitempty"`
}

type IncomingCall struct {
	From     int                  `json:"from"`
	Offer    json.RawMessage      `json:"offer"`
	CallType string               `json:"call_type"`
	Caller   *types.PublicProfile `json:"caller,omitempty"`
}

// MissedCall carries the target inbound and the origin outbound.
type MissedCall struct {
	To   int `json:"to,omitempty"`
	From int `json:"from,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

func errEvent(id, code int, text string) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Type: EventError,
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

func ErrNotFound(id int) *ServerEvent {
	return errEvent(id, http.StatusNotFound, "not found")
}

func ErrUnauthorized(id int) *ServerEvent {
	return errEvent(id, http.StatusForbidden, "unauthorized")
}

func ErrInternalError(id int) *ServerEvent {
	return errEvent(id, http.StatusInternalServerError, "internal server error")
}

func ErrInvalidEvent(id int) *ServerEvent {
	msg := errEvent(0, http.StatusBadRequest, "invalid event format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
