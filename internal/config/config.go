package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	defaultHistoryLimit = 50

	// pbkdf2 parameters for passphrase-derived AES keys
	keyDerivationSalt = "chatseguro-aes-v1"
	keyDerivationIter = 4096
	aesKeyLen         = 32
)

// placeholders that must never reach production; the constructor
// rejects them so no deployment runs on a baked-in key.
var forbiddenSecrets = map[string]struct{}{
	"changeme": {},
	"secret":   {},
	"default":  {},
}

type Params struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningSecret  string // base64, JWT session verification
	HmacSecret     string // raw, message authenticity tags
	AESKeyBase64   string // base64 32-byte key; wins over passphrase
	AESPassphrase  string // pbkdf2-derived key when no raw key is given
	AuditLogFile   string
	AuditEnabled   bool
	HistoryLimit   int
	AllowedOrigins []string
}

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	HmacKey        []byte
	AESKey         []byte
	AuditLogFile   string
	AuditEnabled   bool
	HistoryLimit   int
	AllowedOrigins []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func checkSecret(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if _, ok := forbiddenSecrets[value]; ok {
		return fmt.Errorf("%s must not be a default placeholder value", name)
	}
	return nil
}

func aesKey(p Params) ([]byte, error) {
	if p.AESKeyBase64 != "" {
		key, err := base64.StdEncoding.DecodeString(p.AESKeyBase64)
		if err != nil {
			return nil, fmt.Errorf("decode aes key: %w", err)
		}
		if len(key) != aesKeyLen {
			return nil, fmt.Errorf("aes key must be %d bytes, got %d", aesKeyLen, len(key))
		}
		return key, nil
	}

	if err := checkSecret("aes passphrase", p.AESPassphrase); err != nil {
		return nil, err
	}

	return pbkdf2.Key([]byte(p.AESPassphrase), []byte(keyDerivationSalt), keyDerivationIter, aesKeyLen, sha256.New), nil
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if p.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if err := checkSecret("signing secret", p.SigningSecret); err != nil {
		return nil, err
	}
	if err := checkSecret("hmac secret", p.HmacSecret); err != nil {
		return nil, err
	}
	if p.AuditEnabled && p.AuditLogFile == "" {
		return nil, fmt.Errorf("audit log file cannot be empty when auditing is enabled")
	}

	signingKey, err := decodeSigningSecret(p.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	key, err := aesKey(p)
	if err != nil {
		return nil, err
	}

	historyLimit := p.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	return &Config{
		ServerAddr:     p.ServerAddr,
		DatabaseDSN:    p.DatabaseDSN,
		SigningKey:     signingKey,
		HmacKey:        []byte(p.HmacSecret),
		AESKey:         key,
		AuditLogFile:   p.AuditLogFile,
		AuditEnabled:   p.AuditEnabled,
		HistoryLimit:   historyLimit,
		AllowedOrigins: p.AllowedOrigins,
	}, nil
}
