package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teris-io/shortid"

	"github.com/chatseguro/chatseguro/internal/database"
	"github.com/chatseguro/chatseguro/internal/security"
	"github.com/chatseguro/chatseguro/internal/stats"
	"github.com/chatseguro/chatseguro/internal/types"
)

var errUnknownCommand = errors.New("unknown command")

// runCommand interprets a slash command sent inside a "comando" frame.
// Replies always go back to the issuing connection only; the command
// itself never reaches other members as chat content.
func (c *Client) runCommand(input string) error {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := strings.ToLower(parts[0])

	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/crear":
		return c.createChannel(cmd, args, true)
	case "/crear_priv":
		return c.createChannel(cmd, args, false)
	case "/unir":
		return c.joinChannel(cmd, args)
	case "/salir":
		return c.leaveToGeneral(cmd)
	case "/agregar", "/remover", "/dar_admin", "/quitar_admin":
		return c.adminCommand(cmd, args)
	default:
		return errUnknownCommand
	}
}

func (c *Client) createChannel(cmd, name string, public bool) error {
	if name == "" || strings.Contains(name, " ") {
		c.queueFrame(UsageFrame(cmd, "nombre_canal"))
		return nil
	}

	externalId, err := shortid.Generate()
	if err != nil {
		return fmt.Errorf("generate channel id: %w", err)
	}

	channel, err := c.cs.db.CreateChannel(database.CreateChannelParams{
		Nombre:     name,
		ExternalId: externalId,
		CreatorId:  c.user.Id,
		Publico:    public,
	})
	if err != nil {
		if errors.Is(err, database.ErrChannelExists) {
			c.queueFrame(CommandFrame(cmd, false, "No se pudo crear. ¿Existe ya el nombre?", nil))
			return nil
		}
		return fmt.Errorf("create channel %q: %w", name, err)
	}

	c.log.Printf("channel %q created by %s (id %s)", name, c.user.Nombre, channel.ExternalId)

	lista, err := c.cs.db.ListChannelsForUser(c.user.Id)
	if err != nil {
		c.log.Println("ListChannelsForUser:", err)
		lista = nil
	}

	c.queueFrame(CommandFrame(cmd, true,
		fmt.Sprintf("Canal '%s' creado con id %s", channel.Nombre, channel.ExternalId), wireChannels(lista)))
	return nil
}

// joinChannel moves the connection into the named channel and replays
// its recent history. Messages whose stored blob fails integrity
// checks are replaced by a placeholder instead of being dropped.
func (c *Client) joinChannel(cmd, name string) error {
	if name == "" {
		c.queueFrame(UsageFrame(cmd, "nombre_canal"))
		return nil
	}

	channel, err := c.cs.db.GetChannelByName(name)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.queueFrame(CommandFrame(cmd, false, "No existe ese canal", nil))
			return nil
		}
		return fmt.Errorf("get channel %q: %w", name, err)
	}

	if !channel.Publico && !channel.IsMember(c.user.Id) {
		c.queueFrame(CommandFrame(cmd, false, "El canal es privado. Pide a un admin que te agregue.", nil))
		return nil
	}

	if err := c.cs.db.AddMember(channel.Id, c.user.Id); err != nil {
		return fmt.Errorf("add member to %q: %w", name, err)
	}

	c.cs.registry.MoveToChannel(c, channel.Id)

	stored, err := c.cs.db.GetMessages(channel.Id, c.cs.historyLimit)
	if err != nil {
		c.log.Println("GetMessages:", err)
		stored = nil
	}

	history := make([]types.Message, 0, len(stored))
	for _, m := range stored {
		contenido, err := c.cs.cipher.DecryptString(m.Content)
		if err != nil {
			if !errors.Is(err, security.ErrIntegrity) {
				c.log.Printf("decrypt message %d: %v", m.Id, err)
			}
			contenido = "<contenido no verificable>"
		}

		history = append(history, types.Message{
			Nombre:    m.UserNombre,
			Contenido: contenido,
			Fecha:     m.CreatedAt.UTC().Format(time.RFC3339),
			Hash:      m.Hash,
		})
	}

	// re-fetch so the membership list includes the join we just made
	channel, err = c.cs.db.GetChannelByName(name)
	if err != nil {
		return fmt.Errorf("reload channel %q: %w", name, err)
	}

	wire := wireChannel(channel)
	c.queueFrame(HistoryFrame(
		fmt.Sprintf("Te uniste al canal %s (id:%s)", channel.Nombre, channel.ExternalId),
		history, &wire))
	return nil
}

// leaveToGeneral implements /salir: leave the current channel and fall
// back to general. Leaving general itself is a no-op and a channel's
// last admin cannot walk away from it.
func (c *Client) leaveToGeneral(cmd string) error {
	channelId, ok := c.cs.registry.ChannelOf(c)
	if !ok || channelId == c.cs.general.Id {
		c.queueFrame(CommandFrame(cmd, false, "Ya estás en el canal general.", nil))
		return nil
	}

	if err := c.cs.db.LeaveChannel(c.user.Id, channelId); err != nil {
		if errors.Is(err, database.ErrLastAdmin) {
			c.queueFrame(CommandFrame(cmd, false,
				"Eres el último admin del canal. Nombra otro admin antes de salir.", nil))
			return nil
		}
		return fmt.Errorf("leave channel %d: %w", channelId, err)
	}

	c.cs.registry.MoveToChannel(c, c.cs.general.Id)
	c.queueFrame(CommandFrame(cmd, true, "Regresaste al canal general.", nil))
	return nil
}

// adminCommand covers the four membership-management commands. All of
// them require the issuer to be an admin of the named channel, and all
// of them leave a trail in the audit log.
func (c *Client) adminCommand(cmd, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		c.queueFrame(UsageFrame(cmd, "correo canal"))
		return nil
	}
	email, channelName := fields[0], fields[1]

	channel, err := c.cs.db.GetChannelByName(channelName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.queueFrame(CommandFrame(cmd, false, "Canal no existe", nil))
			return nil
		}
		return fmt.Errorf("get channel %q: %w", channelName, err)
	}

	if !channel.IsAdmin(c.user.Id) {
		c.queueFrame(CommandFrame(cmd, false, "Solo admins pueden usar este comando", nil))
		return nil
	}

	target, err := c.cs.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.queueFrame(CommandFrame(cmd, false,
				fmt.Sprintf("No existe un usuario con correo %s", email), nil))
			return nil
		}
		return fmt.Errorf("get user %q: %w", email, err)
	}

	var opErr error
	var okMsg string
	switch cmd {
	case "/agregar":
		opErr = c.cs.db.AddMember(channel.Id, target.Id)
		okMsg = fmt.Sprintf("%s agregado al canal %s", email, channel.Nombre)
	case "/remover":
		opErr = c.cs.db.RemoveMember(channel.Id, target.Id)
		okMsg = fmt.Sprintf("%s removido del canal %s", email, channel.Nombre)
	case "/dar_admin":
		opErr = c.cs.db.AddAdmin(channel.Id, target.Id)
		okMsg = fmt.Sprintf("%s ahora es admin del canal %s", email, channel.Nombre)
	case "/quitar_admin":
		opErr = c.cs.db.RemoveAdmin(channel.Id, target.Id)
		okMsg = fmt.Sprintf("%s ya no es admin del canal %s", email, channel.Nombre)
	}

	if opErr != nil {
		switch {
		case errors.Is(opErr, database.ErrLastAdmin):
			c.queueFrame(CommandFrame(cmd, false,
				"No se puede quitar al último admin del canal.", nil))
			return nil
		case errors.Is(opErr, database.ErrNotFound):
			c.queueFrame(CommandFrame(cmd, false,
				fmt.Sprintf("%s no es miembro del canal %s", email, channel.Nombre), nil))
			return nil
		}
		return fmt.Errorf("%s %s in %q: %w", cmd, email, channelName, opErr)
	}

	entry := fmt.Sprintf("%s %s en canal %s", cmd, email, channel.Nombre)
	if err := c.cs.audit.Append(c.user.Nombre, entry, security.HashContent(entry)); err != nil {
		c.stats.Incr(stats.AuditFailures)
	}

	c.queueFrame(CommandFrame(cmd, true, okMsg, nil))
	return nil
}
