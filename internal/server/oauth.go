package server

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// CallbackResult carries the full redirect URL captured from the provider.
type CallbackResult struct {
	URL string
}

// CallbackHandler captures the first OAuth redirect hitting its route.
// Implements the Handler interface for registration with a Router.
//
// The handler does not exchange the code. It only records the redirect so the caller can validate
// state and exchange on its own goroutine.
type CallbackHandler struct {
	base       url.URL
	resultChan chan CallbackResult
	once       sync.Once
	mu         sync.Mutex
	hit        bool
}

// NewCallbackHandler creates a handler for the path of redirectURI.
func NewCallbackHandler(redirectURI *url.URL) *CallbackHandler {
	base := *redirectURI
	base.RawQuery = ""
	base.Fragment = ""
	return &CallbackHandler{
		base:       base,
		resultChan: make(chan CallbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	path := h.base.Path
	if path == "" {
		path = "/"
	}
	return []string{path}
}

// ServeHTTP records the redirect and replies with a short page for the browser.
//
// Only the first request is captured; later ones get 400.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	captured := h.base
	captured.RawQuery = r.URL.RawQuery

	title, message := "Authorization Received", "You can close this window and return to the terminal."
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		title, message = "Authorization Failed", "The provider reported: "+errParam
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, callbackPage, title, title, message)

	h.Send(CallbackResult{URL: captured.String()})
}

// Send sends the result through the channel (only once).
func (h *CallbackHandler) Send(result CallbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel. It receives exactly one result and is then closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.resultChan
}

const callbackPage = `<!DOCTYPE html>
<html>
<head>
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>
`
