package server

import (
	"context"
	"log"
	"time"

	"github.com/omkar9814/fullstack-chat-app/internal/database"
	"github.com/omkar9814/fullstack-chat-app/internal/stats"
)

const (
	StatActiveConnections = "ActiveConnections"
	StatEventsRelayed     = "EventsRelayed"
	StatEventsDropped     = "EventsDropped"
	StatMessagesSent      = "MessagesSent"
	StatActiveCalls       = "ActiveCalls"
)

type ChatServer struct {
	log            *log.Logger
	db             database.ChatRepository
	stats          stats.StatsProvider
	registry       *connectionRegistry
	calls          *callTable
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider, ringTimeout time.Duration) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		registry:       newConnectionRegistry(),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	cs.calls = newCallTable(cs, ringTimeout)

	for _, metric := range []string{
		StatActiveConnections,
		StatEventsRelayed,
		StatEventsDropped,
		StatMessagesSent,
		StatActiveCalls,
	} {
		su.RegisterMetric(metric)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection %s for user %d", client.connId, client.user.Id)
			if old := cs.registry.register(client); old != nil {
				// last connection wins: the earlier one is closed
				// without touching the user's presence or calls
				cs.log.Printf("superseding connection %s for user %d", old.connId, old.user.Id)
				old.stopClient()
			} else {
				cs.stats.Incr(StatActiveConnections)
			}
			cs.broadcastPresence()
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %s for user %d", client.connId, client.user.Id)
			if cs.registry.unregister(client) {
				cs.stats.Decr(StatActiveConnections)
				cs.calls.endForUser(client.user.Id)
				cs.broadcastPresence()
			}
		case <-cs.stop:
			cs.log.Println("closing connections")
			for _, c := range cs.registry.clients() {
				c.stopClient()
			}
			cs.calls.stopAll()

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.RegisterChan <- c
}

// broadcastPresence pushes the current online-user set to every
// connected client. Called on every registry change.
func (cs *ChatServer) broadcastPresence() {
	evt := &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: Now(),
		},
		Type:        EventOnlineUsers,
		OnlineUsers: cs.registry.onlineUsers(),
	}

	for _, c := range cs.registry.clients() {
		if !c.queueEvent(evt) {
			cs.stats.Incr(StatEventsDropped)
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
