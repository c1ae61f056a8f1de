package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/teris-io/shortid"
)

const GeneralChannelName = "general"

const uniqueViolation = "23505"

const channelColumns = "c.id, c.external_id, c.nombre, c.creator_id, COALESCE(u.external_id, ''), c.publico, c.created_at"

func (db *PgChatRepository) ValidateUser(externalId, googleId string) (User, error) {
	query := "SELECT id, external_id, nombre, apellido, email, google_id, activo, total_mensajes " +
		"FROM users WHERE external_id = $1"
	args := []any{externalId}

	// provider id is only checked when the client presents one
	if googleId != "" {
		query += " AND google_id = $2"
		args = append(args, googleId)
	}

	row := db.conn.QueryRow(query+" LIMIT 1", args...)

	var u User
	err := row.Scan(
		&u.Id,
		&u.ExternalId,
		&u.Nombre,
		&u.Apellido,
		&u.Email,
		&u.GoogleId,
		&u.Activo,
		&u.TotalMensajes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return u, err
}

func (db *PgChatRepository) GetUserByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, nombre, apellido, email, google_id, activo, total_mensajes "+
			"FROM users WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.ExternalId,
		&u.Nombre,
		&u.Apellido,
		&u.Email,
		&u.GoogleId,
		&u.Activo,
		&u.TotalMensajes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return u, err
}

func (db *PgChatRepository) SetUserActive(userId int, active bool) error {
	_, err := db.conn.Exec(
		"UPDATE users SET activo = $2, last_seen_at = $3 WHERE id = $1",
		userId,
		active,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Channel{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO channels (nombre, external_id, creator_id, publico, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, external_id, nombre, creator_id, publico, created_at",
		params.Nombre,
		params.ExternalId,
		params.CreatorId,
		params.Publico,
		time.Now().UTC(),
	)

	var channel Channel
	err = res.Scan(
		&channel.Id,
		&channel.ExternalId,
		&channel.Nombre,
		&channel.CreatorId,
		&channel.Publico,
		&channel.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return Channel{}, ErrChannelExists
		}
		return Channel{}, err
	}

	// the creator is the first member and admin
	_, err = tx.Exec(
		"INSERT INTO channel_members (channel_id, user_id, is_admin, created_at) VALUES ($1, $2, TRUE, $3)",
		channel.Id,
		params.CreatorId,
		time.Now().UTC(),
	)
	if err != nil {
		return Channel{}, err
	}

	if err = tx.Commit(); err != nil {
		return Channel{}, err
	}

	channel.Members, err = db.channelMembers(channel.Id)
	return channel, err
}

func (db *PgChatRepository) GetChannelByName(name string) (Channel, error) {
	row := db.conn.QueryRow(
		"SELECT "+channelColumns+" FROM channels c "+
			"LEFT JOIN users u ON c.creator_id = u.id WHERE c.nombre = $1 LIMIT 1",
		name,
	)

	return db.scanChannel(row)
}

func (db *PgChatRepository) scanChannel(row *sql.Row) (Channel, error) {
	var channel Channel
	err := row.Scan(
		&channel.Id,
		&channel.ExternalId,
		&channel.Nombre,
		&channel.CreatorId,
		&channel.CreatorExternalId,
		&channel.Publico,
		&channel.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Channel{}, ErrNotFound
	}
	if err != nil {
		return Channel{}, err
	}

	channel.Members, err = db.channelMembers(channel.Id)
	return channel, err
}

func (db *PgChatRepository) channelMembers(channelId int) ([]ChannelMember, error) {
	rows, err := db.conn.Query(
		"SELECT m.user_id, u.external_id, u.nombre, m.is_admin FROM channel_members m "+
			"JOIN users u ON m.user_id = u.id WHERE m.channel_id = $1 ORDER BY m.created_at",
		channelId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]ChannelMember, 0)
	for rows.Next() {
		var m ChannelMember
		if err = rows.Scan(&m.UserId, &m.ExternalId, &m.Nombre, &m.IsAdmin); err != nil {
			return nil, err
		}

		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgChatRepository) ListChannelsForUser(userId int) ([]Channel, error) {
	rows, err := db.conn.Query(
		"SELECT "+channelColumns+" FROM channel_members m "+
			"JOIN channels c ON c.id = m.channel_id "+
			"LEFT JOIN users u ON c.creator_id = u.id "+
			"WHERE m.user_id = $1 ORDER BY c.created_at",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := make([]Channel, 0)
	for rows.Next() {
		var channel Channel
		err = rows.Scan(
			&channel.Id,
			&channel.ExternalId,
			&channel.Nombre,
			&channel.CreatorId,
			&channel.CreatorExternalId,
			&channel.Publico,
			&channel.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range channels {
		if channels[i].Members, err = db.channelMembers(channels[i].Id); err != nil {
			return nil, err
		}
	}

	return channels, nil
}

func (db *PgChatRepository) AddMember(channelId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO channel_members (channel_id, user_id, is_admin, created_at) VALUES ($1, $2, FALSE, $3) "+
			"ON CONFLICT (channel_id, user_id) DO NOTHING",
		channelId,
		userId,
		time.Now().UTC(),
	)

	return err
}

// AddAdmin grants admin rights; a user who is not yet a member is
// added as one in the same statement.
func (db *PgChatRepository) AddAdmin(channelId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO channel_members (channel_id, user_id, is_admin, created_at) VALUES ($1, $2, TRUE, $3) "+
			"ON CONFLICT (channel_id, user_id) DO UPDATE SET is_admin = TRUE",
		channelId,
		userId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) RemoveMember(channelId, userId int) error {
	return db.removeMembership(channelId, userId, false)
}

func (db *PgChatRepository) RemoveAdmin(channelId, userId int) error {
	return db.removeMembership(channelId, userId, true)
}

func (db *PgChatRepository) LeaveChannel(userId, channelId int) error {
	return db.removeMembership(channelId, userId, false)
}

// removeMembership removes a membership row (adminOnly=false) or only
// the admin flag (adminOnly=true). Either way the operation is
// rejected with ErrLastAdmin when it would leave the channel without
// administrators.
func (db *PgChatRepository) removeMembership(channelId, userId int, adminOnly bool) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var isAdmin bool
	err = tx.QueryRow(
		"SELECT is_admin FROM channel_members WHERE channel_id = $1 AND user_id = $2 FOR UPDATE",
		channelId,
		userId,
	).Scan(&isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return err
	}
	if err != nil {
		return err
	}

	if adminOnly && !isAdmin {
		err = ErrNotFound
		return err
	}

	if isAdmin {
		var admins int
		if err = tx.QueryRow(
			"SELECT count(*) FROM channel_members WHERE channel_id = $1 AND is_admin",
			channelId,
		).Scan(&admins); err != nil {
			return err
		}

		if admins <= 1 {
			err = ErrLastAdmin
			return err
		}
	}

	if adminOnly {
		_, err = tx.Exec(
			"UPDATE channel_members SET is_admin = FALSE WHERE channel_id = $1 AND user_id = $2",
			channelId,
			userId,
		)
	} else {
		_, err = tx.Exec(
			"DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2",
			channelId,
			userId,
		)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgChatRepository) CreateMessage(msg Message) (int, error) {
	var id int
	err := db.conn.QueryRow(
		"INSERT INTO messages (channel_id, user_id, content, hash, length, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		msg.ChannelId,
		msg.UserId,
		msg.Content,
		msg.Hash,
		msg.Length,
		msg.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	// per-user message counter is not critical; a failed update does
	// not fail the write
	db.conn.Exec("UPDATE users SET total_mensajes = total_mensajes + 1 WHERE id = $1", msg.UserId)

	return id, nil
}

func (db *PgChatRepository) GetMessages(channelId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.channel_id, m.user_id, u.nombre, m.content, m.hash, m.length, m.created_at "+
			"FROM messages m JOIN users u ON m.user_id = u.id "+
			"WHERE m.channel_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT $2",
		channelId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.Id, &m.ChannelId, &m.UserId, &m.UserNombre, &m.Content, &m.Hash, &m.Length, &m.CreatedAt)
		if err != nil {
			return nil, err
		}

		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// query is newest-first; history is served oldest to newest
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PgChatRepository) EnsureGeneralChannel() (Channel, error) {
	externalId, err := shortid.Generate()
	if err != nil {
		return Channel{}, fmt.Errorf("generate channel id: %w", err)
	}

	_, err = db.conn.Exec(
		"INSERT INTO channels (nombre, external_id, publico, created_at) VALUES ($1, $2, TRUE, $3) "+
			"ON CONFLICT (nombre) DO NOTHING",
		GeneralChannelName,
		externalId,
		time.Now().UTC(),
	)
	if err != nil {
		return Channel{}, err
	}

	return db.GetChannelByName(GeneralChannelName)
}
