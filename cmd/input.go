package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"golang.org/x/term"
)

// readSecret is a test seam for term.ReadPassword.
var readSecret = term.ReadPassword

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// readLine prints prompt to w and reads one trimmed line from reader.
func readLine(reader io.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(reader).ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptRedirect asks for the pasted redirect URL. On a terminal the input is not echoed since it
// carries the authorization code.
func (r *Runner) promptRedirect(ctx context.Context) (string, error) {
	const prompt = "Paste the full redirect URL (or just the code) from your browser:"

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)

	go func() {
		if r.interactive() {
			fmt.Fprint(r.output, prompt+"\n> ")
			b, err := readSecret(int(os.Stdin.Fd()))
			fmt.Fprintln(r.output)
			done <- reply{strings.TrimSpace(string(b)), err}
			return
		}
		text, err := readLine(r.input, prompt, r.output)
		done <- reply{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case rep := <-done:
		return rep.text, rep.err
	}
}

func notifySignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// authInterrupts detaches the auth flow from the root signal context. The first interrupt before
// the prompt only ends the redirect wait. Any later interrupt, or SIGTERM, cancels the flow.
func (r *Runner) authInterrupts(ctx context.Context, prompting *atomic.Bool) (context.Context, <-chan struct{}, func()) {
	authCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	interrupt := make(chan struct{})
	sigs, stopSignals := r.signals()
	done := make(chan struct{})

	go func() {
		skipped := false
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				if sig == os.Interrupt && !skipped && !prompting.Load() {
					skipped = true
					r.logger.Info("interrupted, switching to manual entry")
					close(interrupt)
					continue
				}
				cancel()
				return
			}
		}
	}()

	return authCtx, interrupt, func() {
		close(done)
		stopSignals()
		cancel()
	}
}
