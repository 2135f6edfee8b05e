package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/services"
	"github.com/dustin/go-humanize"
)

func field(label string, value any) string {
	return styles.label.Render(label) + fmt.Sprint(value) + "\n"
}

// When formats t as a relative time, or "never" for nil.
func When(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

// SyncResult summarizes one sync run.
func SyncResult(r *models.SyncResult) string {
	var b strings.Builder
	b.WriteString(Title("Sync complete") + "\n")
	b.WriteString(field("New files", humanize.Comma(int64(r.NewFiles))))
	b.WriteString(field("Updated files", humanize.Comma(int64(r.UpdatedFiles))))
	b.WriteString(field("New tracks", humanize.Comma(int64(r.NewTracks))))

	if len(r.Errors) > 0 {
		b.WriteString(Warn(fmt.Sprintf("%d file(s) failed:", len(r.Errors))) + "\n")
		for _, e := range r.Errors {
			b.WriteString("  " + Error(e.Error()) + "\n")
		}
	}
	return b.String()
}

// SyncStatus renders the ledger summary for dir.
func SyncStatus(s *models.SyncStatus, dir string, now time.Time) string {
	var b strings.Builder
	b.WriteString(Title("Sync status") + "\n")
	b.WriteString(field("Directory", dir))
	b.WriteString(field("Last sync", When(s.LastSync, now)))
	b.WriteString(field("Synced files", humanize.Comma(int64(s.SyncedFiles))))
	b.WriteString(field("Catalog", humanize.Comma(int64(s.CatalogSize))+" tracks"))

	if len(s.PendingFiles) == 0 {
		b.WriteString(Success("Up to date") + "\n")
		return b.String()
	}
	b.WriteString(Warn(fmt.Sprintf("%d pending file(s):", len(s.PendingFiles))) + "\n")
	for _, name := range s.PendingFiles {
		b.WriteString("  - " + name + "\n")
	}
	return b.String()
}

// TrackList renders tracks as a numbered list.
func TrackList(title string, tracks []models.TrackDescriptor) string {
	var b strings.Builder
	b.WriteString(Title(fmt.Sprintf("%s (%s)", title, humanize.Comma(int64(len(tracks))))) + "\n")
	for i, t := range tracks {
		line := fmt.Sprintf("%4d. %s", i+1, t.String())
		if t.Album != "" {
			line += Help(" · " + t.Album)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// Playlists renders playlist names with ids and track counts.
func Playlists(playlists []services.Playlist) string {
	var b strings.Builder
	b.WriteString(Title(fmt.Sprintf("Playlists (%d)", len(playlists))) + "\n")
	for _, p := range playlists {
		b.WriteString(fmt.Sprintf("%s %s %s\n", p.Name, Help(string(p.ID)), Help(humanize.Comma(int64(p.Tracks.Total))+" tracks")))
	}
	return b.String()
}

// Profile renders the current user.
func Profile(u *services.UserProfile) string {
	var b strings.Builder
	b.WriteString(Title(u.Name()) + "\n")
	b.WriteString(field("ID", u.ID))
	if u.Email != "" {
		b.WriteString(field("Email", u.Email))
	}
	if u.Country != "" {
		b.WriteString(field("Country", u.Country))
	}
	if u.Product != "" {
		b.WriteString(field("Plan", u.Product))
	}
	return b.String()
}

// TokenStatus describes a cached token without revealing it.
func TokenStatus(tok *models.TokenRecord, expired bool, now time.Time) string {
	if tok == nil {
		return Warn("No cached token. Run `harmoni spotify auth`.") + "\n"
	}

	var b strings.Builder
	b.WriteString(field("Token cached", "yes"))
	if expired {
		b.WriteString(field("Expires", Warn("expired "+humanize.RelTime(tok.ExpiresAt, now, "ago", "from now"))))
	} else {
		b.WriteString(field("Expires", humanize.RelTime(tok.ExpiresAt, now, "ago", "from now")))
	}
	b.WriteString(field("Refreshable", tok.RefreshToken != ""))
	if scopes := tok.Scopes(); len(scopes) > 0 {
		b.WriteString(field("Scopes", strings.Join(scopes, ", ")))
	}
	return b.String()
}

// Reconciliation summarizes a library check.
func Reconciliation(dir string, downloaded, pending int) string {
	var b strings.Builder
	b.WriteString(Title("Library") + "\n")
	b.WriteString(field("Directory", dir))
	b.WriteString(field("Downloaded", humanize.Comma(int64(downloaded))))
	b.WriteString(field("Pending", humanize.Comma(int64(pending))))
	return b.String()
}
