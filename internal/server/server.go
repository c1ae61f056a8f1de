package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chatseguro/chatseguro/internal/audit"
	"github.com/chatseguro/chatseguro/internal/config"
	"github.com/chatseguro/chatseguro/internal/database"
	"github.com/chatseguro/chatseguro/internal/security"
	"github.com/chatseguro/chatseguro/internal/stats"
)

// ChatServer ties the messaging core together: the connection
// registry, the store gateway, the crypto pipeline and the audit log.
type ChatServer struct {
	log          *log.Logger
	db           database.ChatRepository
	cipher       *security.Cipher
	audit        *audit.Logger
	stats        stats.StatsProvider
	registry     *Registry
	hmacKey      []byte
	historyLimit int

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	general database.Channel
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, cipher *security.Cipher,
	auditLog *audit.Logger, sp stats.StatsProvider, cfg *config.Config) (*ChatServer, error) {

	cs := &ChatServer{
		log:          logger,
		db:           db,
		cipher:       cipher,
		audit:        auditLog,
		stats:        sp,
		registry:     NewRegistry(logger),
		hmacKey:      cfg.HmacKey,
		historyLimit: cfg.HistoryLimit,
		clients:      make(map[*Client]struct{}),
	}

	for _, name := range []string{
		stats.ActiveConnections,
		stats.MessagesTotal,
		stats.MessagesFailed,
		stats.CommandsTotal,
		stats.BroadcastsTotal,
		stats.AuditFailures,
	} {
		sp.RegisterMetric(name)
	}

	return cs, nil
}

// Bootstrap makes sure the distinguished general channel exists; every
// connection lands there after identification.
func (cs *ChatServer) Bootstrap() error {
	general, err := cs.db.EnsureGeneralChannel()
	if err != nil {
		return fmt.Errorf("ensure general channel: %w", err)
	}

	cs.general = general
	cs.log.Printf("general channel ready (id %q)", general.ExternalId)
	return nil
}

func (cs *ChatServer) GeneralChannel() database.Channel {
	return cs.general
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

func (cs *ChatServer) clientCount() int {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	return len(cs.clients)
}

func (cs *ChatServer) broadcast(channelId int, frame *ServerFrame) {
	cs.registry.Broadcast(channelId, frame)
	cs.stats.Incr(stats.BroadcastsTotal)
}

// Shutdown stops every connection and waits for their pumps to drain,
// bounded by ctx.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("stopping client connections")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if cs.clientCount() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
