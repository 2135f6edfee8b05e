// Package server provides HTTP routing, middleware, and the loopback listener that captures OAuth redirects.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// [BasicRouter] matches exact paths with per-method handlers; GET routes also answer HEAD.
//
// # Redirect Capture
//
// [CallbackHandler] records the first request on the redirect path and answers every later one with 400.
// Requests to any other path get 404 from the router without ending the capture.
//
// [CallbackListener] binds the redirect host and port synchronously, serves in a background goroutine,
// and is torn down by [CallbackListener.Await] whether the redirect arrives, the wait times out,
// or the context is cancelled.
//
// Only http redirect URIs on a loopback IP literal with an explicit port activate the listener.
// See [LoopbackAddr].
package server
