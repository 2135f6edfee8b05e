// Spotify Web API response records
//
// Shapes follow https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"strings"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/zmb3/spotify/v2"
)

type followers struct {
	Total int `json:"total"`
}

// UserProfile is the current user's profile from /me.
type UserProfile struct {
	ID          spotify.ID  `json:"id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	Country     string      `json:"country"`
	Product     string      `json:"product"` // premium, free, etc.
	Followers   followers   `json:"followers"`
	URI         spotify.URI `json:"uri"`
}

// Name returns the display name, falling back to the user id.
func (u UserProfile) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return string(u.ID)
}

// Owner is a playlist owner.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type trackCount struct {
	Total int `json:"total"`
}

// Playlist is a simplified playlist object as returned in lists.
type Playlist struct {
	ID            spotify.ID  `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Owner         Owner       `json:"owner"`
	Public        bool        `json:"public"`
	Collaborative bool        `json:"collaborative"`
	SnapshotID    string      `json:"snapshot_id"`
	Tracks        trackCount  `json:"tracks"`
	URI           spotify.URI `json:"uri"`
}

// Artist is a simplified artist.
type Artist struct {
	ID   spotify.ID `json:"id"`
	Name string     `json:"name"`
}

// Album is a simplified album.
type Album struct {
	ID          spotify.ID `json:"id"`
	Name        string     `json:"name"`
	ReleaseDate string     `json:"release_date"`
}

// Track is a full track object. Episodes share the shape with Type "episode".
type Track struct {
	ID         spotify.ID  `json:"id"`
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Artists    []Artist    `json:"artists"`
	Album      Album       `json:"album"`
	DurationMS int         `json:"duration_ms"`
	IsLocal    bool        `json:"is_local"`
	URI        spotify.URI `json:"uri"`
}

// PlaylistItem is one entry of a playlist. Track is nil for removed or unavailable items.
type PlaylistItem struct {
	AddedAt string `json:"added_at"`
	IsLocal bool   `json:"is_local"`
	Track   *Track `json:"track"`
}

// SavedTrack is one entry of the user's liked songs.
type SavedTrack struct {
	AddedAt string `json:"added_at"`
	Track   *Track `json:"track"`
}

// ArtistNames joins the non-empty artist names with ", ".
func (t *Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if n := strings.TrimSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, ", ")
}

// Descriptor converts the track. ok is false for local files, episodes and tracks without
// a title or artist.
func (t *Track) Descriptor() (models.TrackDescriptor, bool) {
	if t == nil || t.IsLocal || (t.Type != "" && t.Type != "track") {
		return models.TrackDescriptor{}, false
	}

	d := models.TrackDescriptor{
		Artist:    t.ArtistNames(),
		Album:     strings.TrimSpace(t.Album.Name),
		Title:     strings.TrimSpace(t.Name),
		SourceURI: string(t.URI),
	}
	return d, d.Valid()
}

// PlaylistDescriptors converts playlist items, dropping unusable entries and duplicate identity
// keys (first occurrence wins). maxTracks <= 0 means no limit.
func PlaylistDescriptors(items []PlaylistItem, maxTracks int) []models.TrackDescriptor {
	tracks := make([]*Track, 0, len(items))
	for _, it := range items {
		if it.IsLocal {
			continue
		}
		tracks = append(tracks, it.Track)
	}
	return descriptors(tracks, maxTracks)
}

// SavedDescriptors converts saved tracks the same way as [PlaylistDescriptors].
func SavedDescriptors(items []SavedTrack, maxTracks int) []models.TrackDescriptor {
	tracks := make([]*Track, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, it.Track)
	}
	return descriptors(tracks, maxTracks)
}

func descriptors(tracks []*Track, maxTracks int) []models.TrackDescriptor {
	seen := make(map[string]bool, len(tracks))
	out := make([]models.TrackDescriptor, 0, len(tracks))

	for _, t := range tracks {
		if maxTracks > 0 && len(out) >= maxTracks {
			break
		}
		d, ok := t.Descriptor()
		if !ok || seen[d.Key()] {
			continue
		}
		seen[d.Key()] = true
		out = append(out, d)
	}
	return out
}
