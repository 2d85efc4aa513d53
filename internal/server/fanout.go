package server

// relay resolves each recipient through the registry and queues the
// event verbatim on every one found online. Delivery is best-effort:
// offline recipients are silently skipped and a full send buffer drops
// the event rather than blocking the caller.
func (cs *ChatServer) relay(evt *ServerEvent, userIds ...int) {
	for _, id := range userIds {
		c, ok := cs.registry.resolve(id)
		if !ok {
			continue
		}

		if c.queueEvent(evt) {
			cs.stats.Incr(StatEventsRelayed)
		} else {
			cs.stats.Incr(StatEventsDropped)
		}
	}
}
