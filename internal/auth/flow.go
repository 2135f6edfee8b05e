package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/server"
	"github.com/desertthunder/harmoni/internal/shared"
)

// DefaultCallbackTimeout bounds the wait for the loopback redirect.
const DefaultCallbackTimeout = 180 * time.Second

// Interaction supplies the operator-facing pieces of [Authenticator.Authenticate].
// Any field may be nil.
type Interaction struct {
	// Show is called with the authorization URL before waiting.
	Show func(authURL string)
	// Open tries to launch a browser.
	Open func(authURL string) error
	// Prompt asks for a pasted redirect URL or raw code.
	Prompt func(ctx context.Context) (string, error)
	// Timeout bounds the loopback wait; zero means [DefaultCallbackTimeout].
	Timeout time.Duration
	// Interrupt ends the loopback wait early when it receives or is closed. The flow then moves
	// on to Prompt.
	Interrupt <-chan struct{}
}

// Authenticate runs one complete authorization attempt.
//
// It captures the redirect on a loopback listener when the redirect URI allows it, and falls back
// to Prompt when listening is impossible, times out or is interrupted through in.Interrupt.
// Cancelling ctx aborts the attempt.
func (a *Authenticator) Authenticate(ctx context.Context, in Interaction) (*models.TokenRecord, error) {
	flow, err := a.Begin()
	if err != nil {
		return nil, err
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}

	var listener *server.CallbackListener
	if _, ok := server.LoopbackAddr(a.config.RedirectURL); ok {
		listener, err = server.ListenCallback(a.config.RedirectURL, a.logger)
		if err != nil {
			a.logger.Warn("cannot listen for redirect, falling back to manual entry", "error", err)
			listener = nil
		}
	} else {
		a.logger.Info("redirect uri is not a loopback address with a port, using manual entry", "redirect_uri", a.config.RedirectURL)
	}

	if in.Show != nil {
		in.Show(flow.AuthURL)
	}
	if in.Open != nil {
		if err := in.Open(flow.AuthURL); err != nil {
			a.logger.Warn("could not open browser", "error", err)
		}
	}

	var redirect string
	if listener != nil {
		redirect, err = awaitRedirect(ctx, listener, timeout, in.Interrupt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("no redirect captured, falling back to manual entry", "error", err)
			redirect = ""
		}
	}

	if redirect == "" {
		if in.Prompt == nil {
			return nil, fmt.Errorf("%w: no redirect captured and no prompt available", shared.ErrTokenUnavailable)
		}
		redirect, err = in.Prompt(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading redirect: %w", err)
		}
	}

	return a.Complete(ctx, flow, redirect)
}

// awaitRedirect waits on a child of ctx so an interrupt ends only the wait.
func awaitRedirect(ctx context.Context, l *server.CallbackListener, timeout time.Duration, interrupt <-chan struct{}) (string, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if interrupt != nil {
		go func() {
			select {
			case <-interrupt:
				cancel()
			case <-waitCtx.Done():
			}
		}()
	}
	return l.Await(waitCtx, timeout)
}
