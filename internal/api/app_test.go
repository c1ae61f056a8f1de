package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/chatseguro/chatseguro/internal/audit"
	"github.com/chatseguro/chatseguro/internal/config"
	"github.com/chatseguro/chatseguro/internal/database"
	"github.com/chatseguro/chatseguro/internal/security"
	"github.com/chatseguro/chatseguro/internal/server"
	"github.com/chatseguro/chatseguro/internal/stats"
	"github.com/chatseguro/chatseguro/internal/testutil"
)

var testSigningKey = []byte("test-signing-key")

func newTestApp(t *testing.T, repo *database.MockChatRepository) *ChatApp {
	t.Helper()

	logger := testutil.TestLogger(t)

	cipher, err := security.NewCipher(bytes.Repeat([]byte{0x22}, 32))
	assert.Nil(t, err)

	cfg := &config.Config{
		ServerAddr:   "localhost:8080",
		DatabaseDSN:  "dsn",
		SigningKey:   testSigningKey,
		HmacKey:      []byte("test-hmac-secret"),
		HistoryLimit: 50,
	}

	ms := stats.NewMockStats()
	cs, err := server.NewChatServer(logger, repo, cipher,
		audit.NewLogger("", false, logger), ms, cfg)
	assert.Nil(t, err)

	repo.On("EnsureGeneralChannel").Return(database.Channel{
		Id: 1, ExternalId: "gen1", Nombre: "general", Publico: true,
	}, nil)
	assert.Nil(t, cs.Bootstrap())

	return NewChatApp(http.NewServeMux(), logger, cs, repo, ms, cfg)
}

func dialWs(t *testing.T, ts *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, conn *websocket.Conn) server.ServerFrame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	assert.Nil(t, err)

	var frame server.ServerFrame
	assert.Nil(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestNewChatApp(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{})

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.srv, "expected server to be initialized")
	assert.NotNil(t, app.log, "expected logger to be set")
	assert.NotNil(t, app.db, "expected db to be set")
	assert.NotNil(t, app.cs, "expected chat server to be set")
	assert.Equal(t, testSigningKey, app.signingKey, "expected signing key to be set")
	assert.Equal(t, "localhost:8080", app.srv.Addr, "expected server address to match config")
}

func TestHealthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		repo := &database.MockChatRepository{}
		repo.On("Ping").Return(nil)

		app := newTestApp(t, repo)
		ts := httptest.NewServer(app.srv.Handler)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/healthz")
		assert.Nil(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("database down", func(t *testing.T) {
		repo := &database.MockChatRepository{}
		repo.On("Ping").Return(assert.AnError)

		app := newTestApp(t, repo)
		ts := httptest.NewServer(app.srv.Handler)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/healthz")
		assert.Nil(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestServeWs_EndToEnd(t *testing.T) {
	repo := &database.MockChatRepository{}
	repo.On("ValidateUser", "u7", "g1").Return(database.User{Id: 7, Nombre: "Ana"}, nil)
	repo.On("ValidateUser", "u9", "").Return(database.User{Id: 9, Nombre: "Luis"}, nil)
	repo.On("SetUserActive", mock.Anything, mock.Anything).Return(nil)
	repo.On("CreateMessage", mock.Anything).Return(1, nil)
	repo.On("ListChannelsForUser", 7).Return([]database.Channel{
		{Id: 1, ExternalId: "gen1", Nombre: "general", Publico: true},
	}, nil)

	app := newTestApp(t, repo)
	ts := httptest.NewServer(app.srv.Handler)
	defer ts.Close()

	conn, _, err := dialWs(t, ts, nil)
	assert.Nil(t, err)
	defer conn.Close()

	assert.Nil(t, conn.WriteJSON(map[string]string{"usuario_id": "u7", "google_id": "g1"}))

	welcome := readFrame(t, conn)
	assert.Equal(t, "bienvenida", welcome.Tipo)
	assert.Equal(t, "Bienvenido Ana", welcome.Mensaje)

	connected := readFrame(t, conn)
	assert.Equal(t, "usuario_conectado", connected.Tipo)
	assert.Equal(t, "Ana", connected.Usuario)

	// a second user lands in the general channel as well
	peer, _, err := dialWs(t, ts, nil)
	assert.Nil(t, err)
	defer peer.Close()

	assert.Nil(t, peer.WriteJSON(map[string]string{"usuario_id": "u9"}))
	assert.Equal(t, "bienvenida", readFrame(t, peer).Tipo)
	assert.Equal(t, "usuario_conectado", readFrame(t, peer).Tipo)
	assert.Equal(t, "usuario_conectado", readFrame(t, conn).Tipo)

	assert.Nil(t, conn.WriteJSON(map[string]string{
		"tipo": "mensaje", "contenido": "hola desde el test",
	}))

	for _, c := range []*websocket.Conn{conn, peer} {
		msg := readFrame(t, c)
		assert.Equal(t, "mensaje", msg.Tipo)
		assert.Equal(t, "Ana", msg.Usuario)
		assert.Equal(t, "hola desde el test", msg.Contenido)
		assert.Len(t, msg.Hmac, 64)
		assert.Len(t, msg.Lista, 1)
	}
}

func TestServeWs_BadIdentify(t *testing.T) {
	repo := &database.MockChatRepository{}
	repo.On("ValidateUser", "u404", "").Return(database.User{}, database.ErrNotFound)

	app := newTestApp(t, repo)
	ts := httptest.NewServer(app.srv.Handler)
	defer ts.Close()

	conn, _, err := dialWs(t, ts, nil)
	assert.Nil(t, err)
	defer conn.Close()

	assert.Nil(t, conn.WriteJSON(map[string]string{"usuario_id": "u404"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Tipo)
	assert.Equal(t, "Usuario no existe o google_id incorrecto", frame.Mensaje)
}

func TestServeWs_SessionCookie(t *testing.T) {
	signCookie := func(t *testing.T, claims jwt.MapClaims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
		assert.Nil(t, err)
		return token
	}

	t.Run("invalid cookie rejected at upgrade", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})
		ts := httptest.NewServer(app.srv.Handler)
		defer ts.Close()

		header := http.Header{}
		header.Set("Cookie", tokenCookieKey+"=not-a-token")

		_, resp, err := dialWs(t, ts, header)
		assert.NotNil(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("cookie user must match identification", func(t *testing.T) {
		repo := &database.MockChatRepository{}
		repo.On("ValidateUser", "u7", "").Return(database.User{Id: 7, Nombre: "Ana"}, nil)

		app := newTestApp(t, repo)
		ts := httptest.NewServer(app.srv.Handler)
		defer ts.Close()

		cookie := signCookie(t, jwt.MapClaims{
			userIdClaim: 99,
			"exp":       time.Now().Add(time.Hour).Unix(),
		})
		header := http.Header{}
		header.Set("Cookie", tokenCookieKey+"="+cookie)

		conn, _, err := dialWs(t, ts, header)
		assert.Nil(t, err)
		defer conn.Close()

		assert.Nil(t, conn.WriteJSON(map[string]string{"usuario_id": "u7"}))

		frame := readFrame(t, conn)
		assert.Equal(t, "error", frame.Tipo)
		assert.Equal(t, "La sesión no corresponde al usuario", frame.Mensaje)
	})

	t.Run("matching cookie accepted", func(t *testing.T) {
		repo := &database.MockChatRepository{}
		repo.On("ValidateUser", "u7", "").Return(database.User{Id: 7, Nombre: "Ana"}, nil)
		repo.On("SetUserActive", 7, true).Return(nil)
		repo.On("SetUserActive", 7, false).Return(nil).Maybe()

		app := newTestApp(t, repo)
		ts := httptest.NewServer(app.srv.Handler)
		defer ts.Close()

		cookie := signCookie(t, jwt.MapClaims{
			userIdClaim: 7,
			"exp":       time.Now().Add(time.Hour).Unix(),
		})
		header := http.Header{}
		header.Set("Cookie", tokenCookieKey+"="+cookie)

		conn, _, err := dialWs(t, ts, header)
		assert.Nil(t, err)
		defer conn.Close()

		assert.Nil(t, conn.WriteJSON(map[string]string{"usuario_id": "u7"}))

		frame := readFrame(t, conn)
		assert.Equal(t, "bienvenida", frame.Tipo)
	})
}
