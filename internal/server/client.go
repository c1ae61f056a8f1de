package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/chatseguro/chatseguro/internal/database"
	"github.com/chatseguro/chatseguro/internal/security"
	"github.com/chatseguro/chatseguro/internal/stats"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is the per-connection session handler. It owns the read and
// write pumps and walks the connection through identification, the
// active frame loop and disconnect cleanup.
type Client struct {
	conn        *websocket.Conn
	cs          *ChatServer
	log         *log.Logger
	stats       stats.StatsProvider
	send        chan *ServerFrame
	stop        chan struct{}
	stopOnce    sync.Once
	cleanupOnce sync.Once

	// authUserId is the user id asserted by a verified session cookie
	// at upgrade time; zero when the client connected without one.
	authUserId int

	user       database.User
	identified bool
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger, sp stats.StatsProvider, authUserId int) *Client {
	return &Client{
		conn:       conn,
		cs:         cs,
		log:        l,
		stats:      sp,
		send:       make(chan *ServerFrame, 256),
		stop:       make(chan struct{}),
		authUserId: authUserId,
	}
}

// Username returns the display name once identified; used for logs.
func (c *Client) Username() string {
	if !c.identified {
		return "<sin identificar>"
	}
	return c.user.Nombre
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(frame)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
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
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	// the first frame must identify the user; anything else is fatal
	// for this connection only
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return
	}

	if !c.identify(raw) {
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.handleFrame(raw)
	}
}

// identify validates the identification frame against the store and,
// on success, registers the connection into the general channel.
func (c *Client) identify(raw []byte) bool {
	var frame IdentifyFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.UsuarioId == "" {
		c.queueFrame(ErrFrame("Falta usuario_id"))
		return false
	}

	user, err := c.cs.db.ValidateUser(frame.UsuarioId, frame.GoogleId)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			c.log.Println("ValidateUser:", err)
		}
		c.queueFrame(ErrFrame("Usuario no existe o google_id incorrecto"))
		return false
	}

	if c.authUserId != 0 && c.authUserId != user.Id {
		c.log.Printf("session cookie user %d does not match identification for %q", c.authUserId, frame.UsuarioId)
		c.queueFrame(ErrFrame("La sesión no corresponde al usuario"))
		return false
	}

	c.user = user
	c.identified = true

	c.cs.registry.Register(c, user.Id, c.cs.general.Id)
	c.stats.Incr(stats.ActiveConnections)

	if err := c.cs.db.SetUserActive(user.Id, true); err != nil {
		c.log.Println("SetUserActive:", err)
	}

	c.queueFrame(WelcomeFrame(user.Nombre))
	c.cs.broadcast(c.cs.general.Id, UserConnectedFrame(user.Nombre))

	return true
}

// handleFrame processes one inbound frame. Every failure here is
// recoverable: the sender gets an error frame and the loop continues.
func (c *Client) handleFrame(raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.queueFrame(ErrFrame("Mensaje no JSON recibido"))
		return
	}

	switch frame.Tipo {
	case FrameComando:
		c.stats.Incr(stats.CommandsTotal)
		if err := c.runCommand(frame.Contenido); err != nil {
			if errors.Is(err, errUnknownCommand) {
				c.queueFrame(ErrFrame("Comando desconocido"))
				return
			}
			c.log.Println("command:", err)
			c.queueFrame(ErrFrame("No se pudo ejecutar el comando"))
		}
	case FrameMensaje, "":
		c.handleMessage(&frame)
	default:
		c.queueFrame(ErrFrame("Tipo de mensaje desconocido: " + frame.Tipo))
	}
}

// handleMessage runs the plain-message pipeline: hash, encrypt,
// persist, audit, tag, broadcast. Persistence and audit failures are
// logged and counted but deliberately do not suppress the broadcast.
func (c *Client) handleMessage(frame *ClientFrame) {
	channelId, ok := c.cs.registry.ChannelOf(c)
	if !ok {
		channelId = c.cs.general.Id
	}

	contenido := frame.Contenido
	hash := security.HashContent(contenido)

	ciphertext, err := c.cs.cipher.EncryptToString(contenido)
	if err != nil {
		c.log.Println("encrypt message:", err)
		c.stats.Incr(stats.MessagesFailed)
	} else {
		if _, err := c.cs.db.CreateMessage(database.Message{
			ChannelId: channelId,
			UserId:    c.user.Id,
			Content:   ciphertext,
			Hash:      hash,
			Length:    utf8.RuneCountInString(contenido),
			CreatedAt: Now(),
		}); err != nil {
			c.log.Println("CreateMessage:", err)
			c.stats.Incr(stats.MessagesFailed)
		}
	}

	if err := c.cs.audit.Append(c.user.Nombre, contenido, hash); err != nil {
		c.stats.Incr(stats.AuditFailures)
	}

	fecha := frame.Fecha
	if fecha == "" {
		fecha = isoNow()
	}

	lista, err := c.cs.db.ListChannelsForUser(c.user.Id)
	if err != nil {
		c.log.Println("ListChannelsForUser:", err)
		lista = nil
	}

	tag := security.Tag([]byte(contenido), c.cs.hmacKey)

	c.stats.Incr(stats.MessagesTotal)
	c.cs.broadcast(channelId, MessageFrame(c.user.Nombre, contenido, fecha, tag, wireChannels(lista)))
}

func (c *Client) queueFrame(frame *ServerFrame) bool {
	select {
	case c.send <- frame:
	default:
		c.log.Println("failed to queue frame, channel is full")
		return false
	}

	return true
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

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanup tears down the connection exactly once: registry removal is
// idempotent and presence is only announced for identified sessions.
func (c *Client) cleanup() {
	c.cleanupOnce.Do(func() {
		c.cs.removeClient(c)
		c.cs.registry.Unregister(c)

		if c.identified {
			if err := c.cs.db.SetUserActive(c.user.Id, false); err != nil {
				c.log.Println("SetUserActive:", err)
			}

			c.stats.Decr(stats.ActiveConnections)
			c.cs.broadcast(c.cs.general.Id, UserDisconnectedFrame(c.user.Nombre))
			c.log.Printf("client disconnected (%s)", c.user.Nombre)
		}

		c.stopClient()
	})
}
