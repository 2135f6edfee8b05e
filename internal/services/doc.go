// Package services implements the Spotify Web API client.
//
// # Requests
//
// [Client.Get] attaches a bearer token from a [TokenProvider] and classifies each attempt as
// success, retryable, unauthorized or fatal:
//   - 401 refreshes the token once and resends; a second 401 fails
//   - 429 waits max(1s, Retry-After) plus jitter
//   - 5xx and network failures back off exponentially from BackoffBase, capped
//   - any other 4xx fails immediately
//
// Retries are bounded by MaxRetries total attempts per call. State is not shared between calls, so
// concurrent callers must rate limit externally. [ClientOptions.RequestsPerSecond] enables a
// client-side limiter for that purpose.
//
// # Pagination
//
// [FetchAll] walks {items, total, limit, offset} collections eagerly and returns the full list.
// Items are decoded individually; nulls and malformed entries are skipped.
//
// # Error Handling
//
// Failures are [*APIError] values whose Kind is a sentinel from the shared package:
//   - [shared.ErrRateLimited] : 429 after the final attempt
//   - [shared.ErrServerTransient] : 5xx or network failure after the final attempt
//   - [shared.ErrClientRequest] : non-retryable 4xx, with the provider's message
//   - [shared.ErrTokenUnavailable] : 401 after the single refresh
//   - [shared.ErrInvalidResponse] : undecodable 2xx body
//
// # Mappings
//
// [Track.Descriptor] maps tracks to [models.TrackDescriptor]. Local files, episodes and tracks
// lacking a title or artist are dropped, and [PlaylistDescriptors] / [SavedDescriptors] remove
// duplicate identity keys keeping the first occurrence.
package services
