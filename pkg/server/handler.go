// pkg/server/handler.go
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

// UpgradeHandler returns an http.HandlerFunc that upgrades requests to
// WebSocket and hands the socket to srv. args derives the per-connection
// arguments from the request; it may be nil when A carries nothing.
func UpgradeHandler[ID comparable, P any, A any](srv *Server[ID, P, A], args func(*http.Request) A, opts *websocket.AcceptOptions, sockOpts ...socket.Option) http.HandlerFunc {
	sockOpts = append([]socket.Option{socket.WithLogger(srv.logger)}, sockOpts...)

	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-srv.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			srv.logger.Info("Server: rejected connection, server stopped", "addr", r.RemoteAddr)
			return
		default:
		}

		sock, err := socket.Accept(w, r, opts, sockOpts...)
		if err != nil {
			srv.logger.Info("Server: failed to accept websocket connection", "addr", r.RemoteAddr, "error", err)
			return
		}

		var a A
		if args != nil {
			a = args(r)
		}

		_, err = srv.AcceptWait(context.Background(), sock, r.RemoteAddr, a)
		if errors.Is(err, ErrClosed) {
			_ = sock.Close(context.Background(), &socket.CloseFrame{Code: socket.CloseGoingAway, Reason: "server stopped"})
		}
	}
}
