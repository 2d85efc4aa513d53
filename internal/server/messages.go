package server

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/omkar9814/fullstack-chat-app/internal/database"
	"github.com/omkar9814/fullstack-chat-app/internal/types"
	"github.com/teris-io/shortid"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotSender       = errors.New("actor is not the message sender")
	ErrNotParticipant  = errors.New("actor is not a conversation participant")
)

// ApiMessage converts a stored message to its wire representation.
func ApiMessage(msg database.Message) types.Message {
	return types.Message{
		Id:         msg.ExternalId,
		SenderId:   msg.SenderId,
		ReceiverId: msg.ReceiverId,
		Text:       msg.Text,
		Image:      msg.Image,
		Video:      msg.Video,
		ReadBy:     msg.ReadBy,
		Reactions:  msg.Reactions,
		Edited:     msg.Edited,
		Deleted:    msg.Deleted,
		CreatedAt:  msg.CreatedAt,
		UpdatedAt:  msg.UpdatedAt,
	}
}

// SendMessage persists a new message and relays it to both
// participants. The sender is implicitly part of readBy.
func (cs *ChatServer) SendMessage(senderId int, p SendMessage) (types.Message, error) {
	if _, err := cs.db.GetAccountById(p.ReceiverId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrUserNotFound
		}
		return types.Message{}, fmt.Errorf("get receiver: %w", err)
	}

	externalId, err := shortid.Generate()
	if err != nil {
		return types.Message{}, fmt.Errorf("generate message id: %w", err)
	}

	msg, err := cs.db.CreateMessage(database.CreateMessageParams{
		ExternalId: externalId,
		SenderId:   senderId,
		ReceiverId: p.ReceiverId,
		Text:       p.Text,
		Image:      p.Image,
		Video:      p.Video,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	cs.stats.Incr(StatMessagesSent)

	apiMsg := ApiMessage(msg)
	cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventNewMessage,
		Message:   &apiMsg,
	}, msg.SenderId, msg.ReceiverId)

	return apiMsg, nil
}

// EditMessage replaces the text of a message. Only the sender may edit.
func (cs *ChatServer) EditMessage(actorId int, messageId, text string) (types.Message, error) {
	msg, err := cs.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	if msg.SenderId != actorId {
		return types.Message{}, ErrNotSender
	}

	msg.Text = text
	msg.Edited = true

	saved, err := cs.db.UpdateMessage(msg)
	if err != nil {
		return types.Message{}, fmt.Errorf("update message: %w", err)
	}

	apiMsg := ApiMessage(saved)
	cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventMessageEdited,
		Message:   &apiMsg,
	}, saved.SenderId, saved.ReceiverId)

	return apiMsg, nil
}

// DeleteMessage soft-deletes: content fields are cleared but the row
// survives so ordering and reply context are preserved. Deleting an
// already-deleted message is a no-op.
func (cs *ChatServer) DeleteMessage(actorId int, messageId string) (types.Message, error) {
	msg, err := cs.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	if msg.SenderId != actorId {
		return types.Message{}, ErrNotSender
	}

	if msg.Deleted {
		return ApiMessage(msg), nil
	}

	msg.Text = ""
	msg.Image = ""
	msg.Video = ""
	msg.Deleted = true

	saved, err := cs.db.UpdateMessage(msg)
	if err != nil {
		return types.Message{}, fmt.Errorf("update message: %w", err)
	}

	cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventMessageDeleted,
		MessageId: saved.ExternalId,
	}, saved.SenderId, saved.ReceiverId)

	return ApiMessage(saved), nil
}

// ReactToMessage toggles the actor's reaction: the same token removes
// it, a different token replaces it. A user never holds more than one
// reaction per message.
func (cs *ChatServer) ReactToMessage(actorId int, messageId, reaction string) (types.Message, error) {
	msg, err := cs.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	if msg.SenderId != actorId && msg.ReceiverId != actorId {
		return types.Message{}, ErrNotParticipant
	}

	if msg.Reactions == nil {
		msg.Reactions = make(map[int]string)
	}

	if msg.Reactions[actorId] == reaction {
		delete(msg.Reactions, actorId)
	} else {
		msg.Reactions[actorId] = reaction
	}

	saved, err := cs.db.UpdateMessage(msg)
	if err != nil {
		return types.Message{}, fmt.Errorf("update message: %w", err)
	}

	// broadcast the minimal delta, not the whole reaction map, so
	// concurrent toggles from both participants cannot clobber each
	// other's view
	cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventReactionUpdate,
		Reaction: &Reaction{
			MessageId: saved.ExternalId,
			UserId:    actorId,
			Reaction:  saved.Reactions[actorId],
		},
	}, saved.SenderId, saved.ReceiverId)

	return ApiMessage(saved), nil
}

// MarkMessageRead records that the actor has read the message. Marking
// an already-read message succeeds without a broadcast.
func (cs *ChatServer) MarkMessageRead(actorId int, messageId string) (types.Message, error) {
	msg, err := cs.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	if msg.SenderId != actorId && msg.ReceiverId != actorId {
		return types.Message{}, ErrNotParticipant
	}

	if slices.Contains(msg.ReadBy, actorId) {
		return ApiMessage(msg), nil
	}

	msg.ReadBy = append(msg.ReadBy, actorId)

	saved, err := cs.db.UpdateMessage(msg)
	if err != nil {
		return types.Message{}, fmt.Errorf("update message: %w", err)
	}

	cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventReadReceipt,
		Receipt: &ReadMark{
			MessageId: saved.ExternalId,
			UserId:    actorId,
		},
	}, saved.SenderId, saved.ReceiverId)

	return ApiMessage(saved), nil
}

func (cs *ChatServer) getMessage(externalId string) (database.Message, error) {
	msg, err := cs.db.GetMessageByExternalId(externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Message{}, ErrMessageNotFound
		}
		return database.Message{}, fmt.Errorf("get message: %w", err)
	}

	return msg, nil
}

func (cs *ChatServer) handleSendMessage(evt *ClientEvent) {
	if evt.SendMessage == nil || evt.SendMessage.ReceiverId == 0 {
		cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		evt.client.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	if _, err := cs.SendMessage(evt.UserId, *evt.SendMessage); err != nil {
		cs.log.Println("send message:", err)
		evt.client.queueEvent(opErrorEvent(evt.Id, err))
	}
}

// handleTyping fans a typing or stop-typing notice to the single
// counterpart. Unpersisted, fire and forget; clients own debounce.
func (cs *ChatServer) handleTyping(evt *ClientEvent) {
	if evt.Typing == nil || evt.Typing.ReceiverId == 0 {
		cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		return
	}

	cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      evt.Type,
		Typing:    &Typing{SenderId: evt.UserId},
	}, evt.Typing.ReceiverId)
}

func (cs *ChatServer) handleRead(evt *ClientEvent) {
	if evt.Read == nil || evt.Read.MessageId == "" {
		cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		evt.client.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	if _, err := cs.MarkMessageRead(evt.UserId, evt.Read.MessageId); err != nil {
		cs.log.Println("mark message read:", err)
		evt.client.queueEvent(opErrorEvent(evt.Id, err))
	}
}

func (cs *ChatServer) handleReaction(evt *ClientEvent) {
	if evt.Reaction == nil || evt.Reaction.MessageId == "" {
		cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		evt.client.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	if _, err := cs.ReactToMessage(evt.UserId, evt.Reaction.MessageId, evt.Reaction.Reaction); err != nil {
		cs.log.Println("react to message:", err)
		evt.client.queueEvent(opErrorEvent(evt.Id, err))
	}
}

func (cs *ChatServer) handleEdit(evt *ClientEvent) {
	if evt.Edit == nil || evt.Edit.MessageId == "" {
		cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		evt.client.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	if _, err := cs.EditMessage(evt.UserId, evt.Edit.MessageId, evt.Edit.Text); err != nil {
		cs.log.Println("edit message:", err)
		evt.client.queueEvent(opErrorEvent(evt.Id, err))
	}
}

func (cs *ChatServer) handleDelete(evt *ClientEvent) {
	if evt.Delete == nil || evt.Delete.MessageId == "" {
		cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		evt.client.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	if _, err := cs.DeleteMessage(evt.UserId, evt.Delete.MessageId); err != nil {
		cs.log.Println("delete message:", err)
		evt.client.queueEvent(opErrorEvent(evt.Id, err))
	}
}

func opErrorEvent(id int, err error) *ServerEvent {
	switch {
	case errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrUserNotFound):
		return ErrNotFound(id)
	case errors.Is(err, ErrNotSender), errors.Is(err, ErrNotParticipant):
		return ErrUnauthorized(id)
	default:
		return ErrInternalError(id)
	}
}
