package types

// Wire-facing views of the persisted entities. JSON tags follow the
// field names the chat clients already speak.

type Channel struct {
	Id            string   `json:"_id"`
	Nombre        string   `json:"nombre"`
	CreadorId     string   `json:"creador_id,omitempty"`
	Admins        []string `json:"admins"`
	Miembros      []string `json:"miembros"`
	Publico       bool     `json:"publico"`
	FechaCreacion string   `json:"fecha_creacion,omitempty"`
}

type Message struct {
	Nombre    string `json:"nombre"`
	Contenido string `json:"contenido"`
	Fecha     string `json:"fecha"`
	Hash      string `json:"hash,omitempty"`
}
