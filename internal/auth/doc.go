// Package auth implements the Spotify OAuth PKCE flow and the on-disk token cache.
//
// [TokenStore] keeps one token per profile with an absolute expiry. [Authenticator] builds the
// authorization URL, captures the redirect through a loopback listener or manual entry, checks the
// csrf state before exchanging the code, and refreshes expired tokens on demand.
//
// Token refresh is not serialized. Two processes racing an expired token may both refresh.
package auth
