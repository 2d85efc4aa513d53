package server

import (
	"sync"
	"time"

	"github.com/omkar9814/fullstack-chat-app/internal/types"
)

const (
	CallTypeAudio = "audio"
	CallTypeVideo = "video"
)

type callState int

const (
	callRinging callState = iota
	callActive
)

// callSession is the ephemeral state of one call attempt between an
// ordered pair of users. It is never persisted and only the callTable
// mutates it, always under the table lock.
type callSession struct {
	callerId  int
	calleeId  int
	callType  string
	state     callState
	ringTimer *time.Timer
	createdAt time.Time
}

func (s *callSession) peer(userId int) int {
	if userId == s.callerId {
		return s.calleeId
	}
	return s.callerId
}

// callTable owns every live call session. Both participants key the
// same session, which makes the busy check a single lookup.
type callTable struct {
	cs          *ChatServer
	ringTimeout time.Duration
	mu          sync.Mutex
	sessions    map[int]*callSession
}

func newCallTable(cs *ChatServer, ringTimeout time.Duration) *callTable {
	return &callTable{
		cs:          cs,
		ringTimeout: ringTimeout,
		sessions:    make(map[int]*callSession),
	}
}

// handleCallUser starts a call attempt. A callee that is offline, or a
// party already in any live session, answers the attempt with an
// immediate endCall so the initiator's state machine stays bounded.
func (ct *callTable) handleCallUser(evt *ClientEvent) {
	p := evt.Call
	if p == nil || p.To == 0 || p.To == evt.UserId || (p.CallType != CallTypeAudio && p.CallType != CallTypeVideo) {
		ct.cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		evt.client.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	if _, online := ct.cs.registry.resolve(p.To); !online {
		ct.cs.log.Printf("call from user %d to offline user %d", evt.UserId, p.To)
		evt.client.queueEvent(&ServerEvent{
			BaseEvent: BaseEvent{Id: evt.Id, Timestamp: Now()},
			Type:      EventEndCall,
		})
		return
	}

	ct.mu.Lock()
	if ct.sessions[evt.UserId] != nil || ct.sessions[p.To] != nil {
		ct.mu.Unlock()
		// busy: decline immediately, the existing session is untouched
		ct.cs.log.Printf("declining call from user %d: user %d or caller already in a call", evt.UserId, p.To)
		evt.client.queueEvent(&ServerEvent{
			BaseEvent: BaseEvent{Id: evt.Id, Timestamp: Now()},
			Type:      EventEndCall,
		})
		return
	}

	session := &callSession{
		callerId:  evt.UserId,
		calleeId:  p.To,
		callType:  p.CallType,
		state:     callRinging,
		createdAt: time.Now(),
	}
	session.ringTimer = time.AfterFunc(ct.ringTimeout, func() {
		ct.missCall(session)
	})

	ct.sessions[session.callerId] = session
	ct.sessions[session.calleeId] = session
	ct.mu.Unlock()

	ct.cs.stats.Incr(StatActiveCalls)

	// enrich with the caller's profile so the callee needs no extra
	// round trip; a failed lookup falls back to the bare caller id
	var caller *types.PublicProfile
	if user, err := ct.cs.db.GetPublicProfile(evt.UserId); err != nil {
		ct.cs.log.Printf("caller profile lookup for user %d: %v", evt.UserId, err)
	} else {
		caller = &types.PublicProfile{
			Id:       user.Id,
			Username: user.Username,
			FullName: user.FullName,
			Avatar:   user.Avatar,
		}
	}

	ct.cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventCallUser,
		Call: &IncomingCall{
			From:     evt.UserId,
			Offer:    p.Offer,
			CallType: p.CallType,
			Caller:   caller,
		},
	}, session.calleeId)
}

// missCall fires when the ring timer expires. The session identity and
// state are re-checked under the lock so a timer that lost the race
// against an accept or hang-up never tears down a progressed call.
func (ct *callTable) missCall(session *callSession) {
	ct.mu.Lock()
	cur := ct.sessions[session.calleeId]
	if cur != session || session.state != callRinging {
		ct.mu.Unlock()
		return
	}

	delete(ct.sessions, session.callerId)
	delete(ct.sessions, session.calleeId)
	ct.mu.Unlock()

	ct.cs.stats.Decr(StatActiveCalls)
	ct.cs.log.Printf("call from user %d to user %d missed", session.callerId, session.calleeId)

	ct.cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventMissedCall,
		Missed:    &MissedCall{From: session.callerId},
	}, session.calleeId)
}

// handleAnswerCall accepts a ringing call. The ring timer is cancelled
// before the answer is relayed; a late answer for a session that
// already missed or ended is rejected.
func (ct *callTable) handleAnswerCall(evt *ClientEvent) {
	p := evt.Answer
	if p == nil || p.To == 0 {
		ct.cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		evt.client.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	ct.mu.Lock()
	session := ct.sessions[evt.UserId]
	if session == nil || session.calleeId != evt.UserId || session.callerId != p.To || session.state != callRinging {
		ct.mu.Unlock()
		ct.cs.log.Printf("rejecting answer from user %d: no ringing call with user %d", evt.UserId, p.To)
		evt.client.queueEvent(ErrNotFound(evt.Id))
		return
	}

	session.ringTimer.Stop()
	session.state = callActive
	ct.mu.Unlock()

	ct.cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventAnswerCall,
		Answer:    &CallAnswer{Answer: p.Answer},
	}, session.callerId)
}

// handleCandidate forwards a network candidate to the peer. The server
// is a pure relay: candidates are never buffered, validated, or
// reordered here; the receiving client queues them until its local
// description is set.
func (ct *callTable) handleCandidate(evt *ClientEvent) {
	p := evt.Candidate
	if p == nil || p.To == 0 {
		ct.cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		return
	}

	ct.mu.Lock()
	session := ct.sessions[evt.UserId]
	valid := session != nil && session.peer(evt.UserId) == p.To
	ct.mu.Unlock()

	if !valid {
		ct.cs.log.Printf("dropping candidate from user %d: no call with user %d", evt.UserId, p.To)
		return
	}

	ct.cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventIceCandidate,
		Candidate: &CallCandidate{Candidate: p.Candidate},
	}, p.To)
}

// handleEndCall covers decline, cancel, and hang-up: any participant
// ending the session relays endCall to the other party.
func (ct *callTable) handleEndCall(evt *ClientEvent) {
	p := evt.HangUp
	if p == nil || p.To == 0 {
		ct.cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		return
	}

	if !ct.end(evt.UserId, p.To) {
		ct.cs.log.Printf("dropping end-call from user %d: no call with user %d", evt.UserId, p.To)
		return
	}

	ct.cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventEndCall,
	}, p.To)
}

// handleMissedCall lets a callee's client report its own ring timeout
// to the caller before the server deadline fires.
func (ct *callTable) handleMissedCall(evt *ClientEvent) {
	p := evt.Missed
	if p == nil || p.To == 0 {
		ct.cs.log.Printf("dropping malformed %s event from user %d", evt.Type, evt.UserId)
		return
	}

	ct.mu.Lock()
	session := ct.sessions[evt.UserId]
	if session == nil || session.peer(evt.UserId) != p.To || session.state != callRinging {
		ct.mu.Unlock()
		return
	}

	session.ringTimer.Stop()
	delete(ct.sessions, session.callerId)
	delete(ct.sessions, session.calleeId)
	ct.mu.Unlock()

	ct.cs.stats.Decr(StatActiveCalls)

	ct.cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventMissedCall,
		Missed:    &MissedCall{From: evt.UserId},
	}, p.To)
}

// end removes the session between userId and peerId, if one exists.
func (ct *callTable) end(userId, peerId int) bool {
	ct.mu.Lock()
	session := ct.sessions[userId]
	if session == nil || session.peer(userId) != peerId {
		ct.mu.Unlock()
		return false
	}

	session.ringTimer.Stop()
	delete(ct.sessions, session.callerId)
	delete(ct.sessions, session.calleeId)
	ct.mu.Unlock()

	ct.cs.stats.Decr(StatActiveCalls)
	return true
}

// endForUser tears down the session a disconnecting user participates
// in and tells the remaining party, if still connected.
func (ct *callTable) endForUser(userId int) {
	ct.mu.Lock()
	session := ct.sessions[userId]
	if session == nil {
		ct.mu.Unlock()
		return
	}

	peerId := session.peer(userId)
	session.ringTimer.Stop()
	delete(ct.sessions, session.callerId)
	delete(ct.sessions, session.calleeId)
	ct.mu.Unlock()

	ct.cs.stats.Decr(StatActiveCalls)
	ct.cs.log.Printf("ending call between user %d and user %d: user %d disconnected", userId, peerId, userId)

	ct.cs.relay(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Type:      EventEndCall,
	}, peerId)
}

func (ct *callTable) stopAll() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	for _, session := range ct.sessions {
		session.ringTimer.Stop()
	}
	ct.sessions = make(map[int]*callSession)
}
