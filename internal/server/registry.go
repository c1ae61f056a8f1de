package server

import (
	"log"
	"sync"
)

type session struct {
	userId    int
	channelId int
}

// Registry owns the two live-connection mappings: connection to user
// and connection to current channel. All mutation and the broadcast
// iteration go through its lock; callers never see the map itself.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Client]*session
	log      *log.Logger
}

func NewRegistry(l *log.Logger) *Registry {
	return &Registry{
		sessions: make(map[*Client]*session),
		log:      l,
	}
}

func (r *Registry) Register(c *Client, userId, channelId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[c] = &session{userId: userId, channelId: channelId}
}

// Unregister is idempotent; error-handling paths may call it more
// than once for the same connection.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, c)
}

func (r *Registry) MoveToChannel(c *Client, channelId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[c]; ok {
		s.channelId = channelId
	}
}

func (r *Registry) ChannelOf(c *Client) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[c]
	if !ok {
		return 0, false
	}
	return s.channelId, true
}

func (r *Registry) UserOf(c *Client) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[c]
	if !ok {
		return 0, false
	}
	return s.userId, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Broadcast queues frame on every connection currently in channelId
// and returns the number of connections reached. Delivery is
// best-effort per connection: a full send buffer is logged and skipped,
// the transport's own teardown reclaims dead peers.
func (r *Registry) Broadcast(channelId int, frame *ServerFrame) int {
	recipients := r.clientsIn(channelId)
	for _, c := range recipients {
		if !c.queueFrame(frame) {
			r.log.Printf("broadcast: dropping frame for %q, send buffer full", c.Username())
		}
	}

	return len(recipients)
}

// clientsIn snapshots the recipients so registry mutation during the
// actual sends cannot corrupt iteration.
func (r *Registry) clientsIn(channelId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.sessions))
	for c, s := range r.sessions {
		if s.channelId == channelId {
			clients = append(clients, c)
		}
	}
	return clients
}
