package server

import (
	"context"
	"net"
	"net/http"

	"github.com/0xPexy/aletta-backend/internal/config"
)

// HTTP owns the listener for the API. Websocket connections are hijacked, so
// the write timeout does not cut live event streams.
type HTTP struct {
	srv *http.Server
}

func NewHTTP(cfg config.ServerConfig, h http.Handler) *HTTP {
	return &HTTP{srv: &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}}
}

func (h *HTTP) Start() error {
	l, err := net.Listen("tcp", h.srv.Addr)
	if err != nil {
		return err
	}
	return h.Serve(l)
}

func (h *HTTP) Serve(l net.Listener) error {
	return h.srv.Serve(l)
}

func (h *HTTP) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
