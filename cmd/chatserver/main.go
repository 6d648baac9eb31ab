// chatserver/main.go
//
// chatserver runs a broadcast chat: every text a user sends reaches every other
// connected user, and lines typed on stdin reach everyone.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/lightforgemedia/go-ezsockets/internal/config"
	"github.com/lightforgemedia/go-ezsockets/pkg/events"
	"github.com/lightforgemedia/go-ezsockets/pkg/filewatcher"
	"github.com/lightforgemedia/go-ezsockets/pkg/hotreload"
	"github.com/lightforgemedia/go-ezsockets/pkg/relay"
	"github.com/lightforgemedia/go-ezsockets/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, logger); err != nil {
		logger.Error("Chat server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, stdin io.Reader, logger *slog.Logger) error {
	origin := uuid.NewString()

	var (
		nc      *nats.Conn
		publish func([]byte) error
	)
	if cfg.NATS.URL != "" {
		conn, err := relay.Connect(relay.Options{URL: cfg.NATS.URL, Name: "chatserver-" + origin})
		if err != nil {
			return err
		}
		defer conn.Close()
		nc = conn
		publish = relay.Outbound(nc, cfg.NATS.Subject)
	}

	bus := events.NewBus(16)
	defer bus.Close()
	bus.Listen(ctx, func(ev events.Event) {
		logger.Debug("Chat: lifecycle event", "topic", ev.Topic, "id", ev.ID, "addr", ev.Addr)
	}, events.TopicConnected, events.TopicDisconnected, events.TopicFault)

	srv := server.Create(newChatServer(origin, publish, logger),
		server.WithLogger(logger),
		server.WithEvents(bus),
	)
	defer srv.Close()

	if nc != nil {
		sub, err := relay.Inbound[Broadcast](nc, cfg.NATS.Subject, srv, relay.JSON[Broadcast](), logger)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	router := httprouter.New()
	router.Handler(http.MethodGet, cfg.Server.Path, server.UpgradeHandler(srv, nil,
		&websocket.AcceptOptions{OriginPatterns: cfg.Server.OriginPatterns}))
	router.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		fmt.Fprintln(w, "OK")
	})

	var hr *hotreload.HotReload
	if len(cfg.HotReload.Dirs) > 0 {
		h, err := newHotReload(cfg.HotReload, logger)
		if err != nil {
			return err
		}
		hr = h
		router.Handler(http.MethodGet, "/hotreload", hr.Handler(&websocket.AcceptOptions{OriginPatterns: cfg.Server.OriginPatterns}))
		router.Handler(http.MethodGet, "/hotreload.js", hotreload.ScriptHandler(hotreload.DefaultClientScriptOptions()))
		router.HandlerFunc(http.MethodGet, "/api/hotreload/status", hr.StatusHandler)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Reading stdin cannot be interrupted, so it stays outside the group.
	go readLines(stdin, srv, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Chat server listening", "addr", cfg.Server.Addr, "path", cfg.Server.Path, "instance", origin)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-srv.Done():
		}
		logger.Info("Chat server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		herr := httpServer.Shutdown(shutdownCtx)

		srv.Close()
		serr := srv.Wait()

		var rerr error
		if hr != nil {
			rerr = hr.Stop()
		}
		return errors.Join(herr, serr, rerr)
	})
	return g.Wait()
}

func newHotReload(cfg config.HotReload, logger *slog.Logger) (*hotreload.HotReload, error) {
	fw, err := filewatcher.New(
		filewatcher.WithLogger(logger),
		filewatcher.WithDirs(cfg.Dirs),
		filewatcher.WithPatterns(cfg.Patterns),
		filewatcher.WithDebounce(cfg.Debounce),
	)
	if err != nil {
		return nil, err
	}
	hr, err := hotreload.New(hotreload.WithLogger(logger), hotreload.WithFileWatcher(fw))
	if err != nil {
		return nil, err
	}
	if err := hr.Start(); err != nil {
		_ = hr.Stop()
		return nil, err
	}
	return hr, nil
}

// readLines broadcasts every stdin line to all connected users.
func readLines(r io.Reader, srv *server.Server[int, Broadcast, struct{}], logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := srv.Call(Broadcast{Text: line}); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("Chat: stdin closed", "error", err)
	}
}
