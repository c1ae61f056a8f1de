package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chatseguro/chatseguro/internal/api"
	"github.com/chatseguro/chatseguro/internal/audit"
	"github.com/chatseguro/chatseguro/internal/config"
	"github.com/chatseguro/chatseguro/internal/database"
	"github.com/chatseguro/chatseguro/internal/security"
	"github.com/chatseguro/chatseguro/internal/server"
	"github.com/chatseguro/chatseguro/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingSecret  string
	hmacSecret     string
	aesKeyBase64   string
	aesPassphrase  string
	auditLogFile   string
	auditEnabled   bool
	historyLimit   int
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingSecret, "signing-key", "", "base64 encoded session signing key")
	flag.StringVar(&hmacSecret, "hmac-secret", "", "shared secret for message authenticity tags")
	flag.StringVar(&aesKeyBase64, "aes-key", "", "base64 encoded 32-byte AES key")
	flag.StringVar(&aesPassphrase, "aes-passphrase", "", "passphrase to derive the AES key from when no raw key is given")
	flag.StringVar(&auditLogFile, "audit-log", "auditoria.log", "audit log file path")
	flag.BoolVar(&auditEnabled, "audit-enabled", true, "enable the audit log")
	flag.IntVar(&historyLimit, "history-limit", 0, "messages replayed on channel join")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatseguro] ", log.LstdFlags)

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:     addr,
		DatabaseDSN:    dsn,
		SigningSecret:  signingSecret,
		HmacSecret:     hmacSecret,
		AESKeyBase64:   aesKeyBase64,
		AESPassphrase:  aesPassphrase,
		AuditLogFile:   auditLogFile,
		AuditEnabled:   auditEnabled,
		HistoryLimit:   historyLimit,
		AllowedOrigins: allowedOrigins,
	})
	if err != nil {
		logger.Fatal("config: ", err)
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate: ", err)
	}

	cipher, err := security.NewCipher(cfg.AESKey)
	if err != nil {
		logger.Fatal("cipher: ", err)
	}

	auditLog := audit.NewLogger(cfg.AuditLogFile, cfg.AuditEnabled, logger)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, cipher, auditLog, statsUpdater, cfg)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	if err := chatServer.Bootstrap(); err != nil {
		logger.Fatal("bootstrap: ", err)
	}

	srv := api.NewChatApp(mux, logger, chatServer, dbConn, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
