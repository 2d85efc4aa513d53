package server

import (
	"sort"
	"sync"
)

// connectionRegistry is the single source of truth for which users are
// online. It maps a user id to its one live connection: registering a
// second connection for the same user supersedes the first. No other
// component touches the table directly.
type connectionRegistry struct {
	mu      sync.Mutex
	entries map[int]*Client
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{
		entries: make(map[int]*Client),
	}
}

// register installs c as the user's connection and returns the client
// it superseded, if any.
func (r *connectionRegistry) register(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.entries[c.user.Id]
	r.entries[c.user.Id] = c
	return old
}

// unregister removes the user's entry only if it still belongs to c,
// so a stale disconnect never evicts a newer connection for the same
// user. It reports whether an entry was removed.
func (r *connectionRegistry) unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.entries[c.user.Id]
	if !ok || cur.connId != c.connId {
		return false
	}

	delete(r.entries, c.user.Id)
	return true
}

func (r *connectionRegistry) resolve(userId int) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.entries[userId]
	return c, ok
}

func (r *connectionRegistry) onlineUsers() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]int, 0, len(r.entries))
	for id := range r.entries {
		users = append(users, id)
	}
	sort.Ints(users)

	return users
}

func (r *connectionRegistry) clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.entries))
	for _, c := range r.entries {
		clients = append(clients, c)
	}

	return clients
}
