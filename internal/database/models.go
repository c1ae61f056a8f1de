package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id              int
	ExternalId      string
	Nombre          string
	Apellido        string
	Email           string
	GoogleId        sql.NullString
	Activo          bool
	TotalMensajes   int
	TotalConexiones int
	CreatedAt       time.Time
	LastSeenAt      time.Time
}

type ChannelMember struct {
	UserId     int
	ExternalId string
	Nombre     string
	IsAdmin    bool
}

type Channel struct {
	Id                int
	ExternalId        string
	Nombre            string
	CreatorId         sql.NullInt64
	CreatorExternalId string
	Publico           bool
	CreatedAt         time.Time
	Members           []ChannelMember
}

// IsAdmin reports whether userId is in the channel's admin set.
func (c Channel) IsAdmin(userId int) bool {
	for _, m := range c.Members {
		if m.UserId == userId && m.IsAdmin {
			return true
		}
	}
	return false
}

// IsMember reports whether userId belongs to the channel.
func (c Channel) IsMember(userId int) bool {
	for _, m := range c.Members {
		if m.UserId == userId {
			return true
		}
	}
	return false
}

// AdminCount returns the size of the channel's admin set.
func (c Channel) AdminCount() int {
	var n int
	for _, m := range c.Members {
		if m.IsAdmin {
			n++
		}
	}
	return n
}

type Message struct {
	Id         int
	ChannelId  int
	UserId     int
	UserNombre string
	// Content holds the base64 iv||ciphertext blob, never plaintext
	Content   string
	Hash      string
	Length    int
	CreatedAt time.Time
}

type CreateChannelParams struct {
	Nombre     string
	ExternalId string
	CreatorId  int
	Publico    bool
}
