// cmd/server/main.go
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/parlorlive/parlor/internal/auth"
	"github.com/parlorlive/parlor/internal/database"
	"github.com/parlorlive/parlor/internal/handlers"
	"github.com/parlorlive/parlor/internal/journal"
	"github.com/parlorlive/parlor/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	var jnl *journal.Journal
	if os.Getenv("REDIS_ADDR") != "" {
		j, err := journal.Connect(logger)
		if err != nil {
			logger.Warnf("room journal disabled: %v", err)
		} else {
			jnl = j
			logger.Info("room journal connected")
		}
	}

	srv := handlers.NewSocketServer(logger, jnl)

	mux := http.NewServeMux()

	// user auth endpoints
	mux.Handle("/api/users/signup", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.SignupHandler,
	)))
	mux.Handle("/api/users/signin", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.SigninHandler,
	)))

	// room listing (same summaries the lobby:rooms event serves)
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(srv),
	)))

	// room/lobby websocket
	mux.Handle("/ws", http.HandlerFunc(handlers.SocketHandler(logger, srv)))

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: time.Second * 10,
	}

	l, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}
}
