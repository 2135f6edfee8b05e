package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/shared"
)

const shutdownGrace = 2 * time.Second

// containerCheck reports whether the process runs inside a container.
var containerCheck = func() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("container") != ""
}

// LoopbackAddr returns the address to bind for redirectURI.
//
// ok is false unless the URI uses http, its host is a loopback IP literal and it names an explicit port.
// Inside a container 127.0.0.1 becomes 0.0.0.0 so the published port reaches the listener.
func LoopbackAddr(redirectURI string) (addr string, ok bool) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme != "http" {
		return "", false
	}

	host, port := u.Hostname(), u.Port()
	if port == "" {
		return "", false
	}

	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return "", false
	}

	if host == "127.0.0.1" && containerCheck() {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, port), true
}

// CallbackListener serves a single OAuth redirect on a loopback address.
type CallbackListener struct {
	server    *http.Server
	listener  net.Listener
	handler   *CallbackHandler
	logger    *log.Logger
	closeOnce sync.Once
	closeErr  error
}

// ListenCallback binds the redirect address synchronously and starts serving in the background.
//
// A bind failure is returned immediately so callers can fall back to manual entry.
func ListenCallback(redirectURI string, logger *log.Logger) (*CallbackListener, error) {
	addr, ok := LoopbackAddr(redirectURI)
	if !ok {
		return nil, fmt.Errorf("%w: redirect uri %q is not a loopback address with a port", shared.ErrInvalidConfig, redirectURI)
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", addr, err)
	}

	logger = shared.WithLogger(logger, "component", "callback")
	handler := NewCallbackHandler(u)
	router := NewBasicRouter()
	router.Use(RequestLogger(logger))
	router.Handler(handler)
	router.NotFound(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Waiting for the authorization redirect on "+handler.Routes()[0], http.StatusNotFound)
	}))

	l := &CallbackListener{
		server:   &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
		listener: ln,
		handler:  handler,
		logger:   logger,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("callback server stopped", "error", err)
		}
	}()

	logger.Debug("listening for redirect", "addr", ln.Addr().String(), "path", u.Path)
	return l, nil
}

// Addr returns the bound address.
func (l *CallbackListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Await blocks until the redirect arrives, timeout elapses or ctx is done.
// The listener is shut down on every return path.
func (l *CallbackListener) Await(ctx context.Context, timeout time.Duration) (string, error) {
	defer l.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-l.handler.Result():
		return res.URL, nil
	case <-timer.C:
		return "", fmt.Errorf("%w: no redirect received within %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close shuts the server down. Safe to call more than once.
func (l *CallbackListener) Close() error {
	l.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		l.closeErr = l.server.Shutdown(ctx)
	})
	return l.closeErr
}
