package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/iglogger/internal/config"
	"github.com/berfenger/iglogger/internal/status"

	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port    uint
	httpLog bool
	store   *status.Store
}

func NewServer(cfg config.Config, store *status.Store) *http.Server {
	NewServer := &Server{
		port:    cfg.HTTP.Port,
		store:   store,
		httpLog: cfg.HTTP.HttpLog,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
