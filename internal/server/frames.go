package server

import (
	"fmt"
	"time"

	"github.com/chatseguro/chatseguro/internal/database"
	"github.com/chatseguro/chatseguro/internal/types"
)

// Inbound frame kinds. Anything else is a protocol error; there is no
// silent fallthrough for unknown tags.
const (
	FrameMensaje = "mensaje"
	FrameComando = "comando"
)

// Outbound frame kinds.
const (
	FrameBienvenida          = "bienvenida"
	FrameUsuarioConectado    = "usuario_conectado"
	FrameUsuarioDesconectado = "usuario_desconectado"
	FrameError               = "error"
	FrameHistorial           = "historial"
)

// IdentifyFrame is the first frame every connection must send.
type IdentifyFrame struct {
	UsuarioId string `json:"usuario_id"`
	GoogleId  string `json:"google_id,omitempty"`
}

// ClientFrame is any frame after identification.
type ClientFrame struct {
	Tipo      string `json:"tipo"`
	Contenido string `json:"contenido"`
	Fecha     string `json:"fecha,omitempty"`
}

type CommandResult struct {
	Exito   bool   `json:"exito"`
	Mensaje string `json:"mensaje"`
}

// ServerFrame is the single outbound frame shape, tagged by Tipo.
type ServerFrame struct {
	Tipo      string          `json:"tipo"`
	Usuario   string          `json:"usuario,omitempty"`
	Mensaje   string          `json:"mensaje,omitempty"`
	Contenido string          `json:"contenido,omitempty"`
	Fecha     string          `json:"fecha,omitempty"`
	Hmac      string          `json:"hmac,omitempty"`
	Comando   string          `json:"comando,omitempty"`
	Resultado *CommandResult  `json:"resultado,omitempty"`
	Lista     []types.Channel `json:"lista,omitempty"`
	Mensajes  []types.Message `json:"mensajes,omitempty"`
	Canal     *types.Channel  `json:"canal,omitempty"`
}

func ErrFrame(msg string) *ServerFrame {
	return &ServerFrame{
		Tipo:    FrameError,
		Mensaje: msg,
	}
}

func UsageFrame(cmd, usage string) *ServerFrame {
	return ErrFrame(fmt.Sprintf("Uso: %s %s", cmd, usage))
}

func WelcomeFrame(nombre string) *ServerFrame {
	return &ServerFrame{
		Tipo:    FrameBienvenida,
		Mensaje: fmt.Sprintf("Bienvenido %s", nombre),
		Usuario: nombre,
	}
}

func UserConnectedFrame(nombre string) *ServerFrame {
	return &ServerFrame{
		Tipo:    FrameUsuarioConectado,
		Usuario: nombre,
	}
}

func UserDisconnectedFrame(nombre string) *ServerFrame {
	return &ServerFrame{
		Tipo:    FrameUsuarioDesconectado,
		Usuario: nombre,
	}
}

func CommandFrame(cmd string, exito bool, msg string, lista []types.Channel) *ServerFrame {
	return &ServerFrame{
		Tipo:    FrameComando,
		Comando: cmd,
		Resultado: &CommandResult{
			Exito:   exito,
			Mensaje: msg,
		},
		Lista: lista,
	}
}

func HistoryFrame(contenido string, mensajes []types.Message, canal *types.Channel) *ServerFrame {
	return &ServerFrame{
		Tipo:      FrameHistorial,
		Comando:   "/unir",
		Contenido: contenido,
		Mensajes:  mensajes,
		Canal:     canal,
	}
}

func MessageFrame(usuario, contenido, fecha, hmacTag string, lista []types.Channel) *ServerFrame {
	return &ServerFrame{
		Tipo:      FrameMensaje,
		Usuario:   usuario,
		Contenido: contenido,
		Fecha:     fecha,
		Hmac:      hmacTag,
		Lista:     lista,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func isoNow() string {
	return Now().Format(time.RFC3339)
}

// wireChannel converts a stored channel into its wire document.
func wireChannel(c database.Channel) types.Channel {
	admins := make([]string, 0)
	miembros := make([]string, 0)
	for _, m := range c.Members {
		miembros = append(miembros, m.ExternalId)
		if m.IsAdmin {
			admins = append(admins, m.ExternalId)
		}
	}

	return types.Channel{
		Id:            c.ExternalId,
		Nombre:        c.Nombre,
		CreadorId:     c.CreatorExternalId,
		Admins:        admins,
		Miembros:      miembros,
		Publico:       c.Publico,
		FechaCreacion: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func wireChannels(channels []database.Channel) []types.Channel {
	out := make([]types.Channel, len(channels))
	for i, c := range channels {
		out[i] = wireChannel(c)
	}
	return out
}
