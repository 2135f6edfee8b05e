package library

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/dhowden/tag"
	"github.com/spf13/afero"
)

const separator = " - "

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".webm": true,
}

// SanitizeName makes s usable as a single path element.
func SanitizeName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "/", "-"))
}

// Stem returns "<Artist> - <Title>" sanitized for use as a file name without extension.
func Stem(track models.TrackDescriptor) string {
	return SanitizeName(strings.TrimSpace(track.Artist) + separator + strings.TrimSpace(track.Title))
}

// Filename returns the on-disk name for track in the given audio format.
func Filename(track models.TrackDescriptor, format string) string {
	return Stem(track) + "." + strings.TrimPrefix(format, ".")
}

// PlaylistDir returns the folder a named playlist downloads into.
func PlaylistDir(outputDir, playlist string) string {
	return filepath.Join(outputDir, SanitizeName(playlist))
}

// Key is the identity key of track as it would appear on disk.
func Key(track models.TrackDescriptor) string {
	return shared.NormalizeTrackKey(SanitizeName(track.Artist), SanitizeName(track.Title))
}

// ParseFilename splits "Artist - Title.ext" at the first separator.
func ParseFilename(name string) (artist, title string, ok bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	artist, title, ok = strings.Cut(stem, separator)
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	if !ok || artist == "" || title == "" {
		return "", "", false
	}
	return artist, title, true
}

// ExistingKeys returns the identity keys of audio files directly inside dir.
// A missing directory yields an empty set.
func ExistingKeys(fsys afero.Fs, dir string, logger *log.Logger) (map[string]bool, error) {
	logger = shared.WithLogger(logger, "component", "library")
	keys := map[string]bool{}

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return keys, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		if artist, title, ok := ParseFilename(entry.Name()); ok {
			keys[shared.NormalizeTrackKey(artist, title)] = true
			continue
		}

		artist, title, err := readTags(fsys, filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Debug("no usable tags", "file", entry.Name(), "error", err)
			continue
		}
		keys[shared.NormalizeTrackKey(SanitizeName(artist), SanitizeName(title))] = true
	}
	return keys, nil
}

func readTags(fsys afero.Fs, path string) (string, string, error) {
	// bytes.Reader rejects the negative seek ID3v1 detection makes on files under 128 bytes.
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", "", err
	}

	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}

	artist := strings.TrimSpace(m.Artist())
	if artist == "" {
		artist = strings.TrimSpace(m.AlbumArtist())
	}
	title := strings.TrimSpace(m.Title())
	if artist == "" || title == "" {
		return "", "", tag.ErrNoTagsFound
	}
	return artist, title, nil
}

// Reconciliation splits a track list by presence on disk.
type Reconciliation struct {
	Downloaded []models.TrackDescriptor
	Pending    []models.TrackDescriptor
}

// Reconcile partitions tracks by whether their key is in existing. Invalid tracks are dropped
// and repeated keys keep the first occurrence; order is otherwise preserved.
func Reconcile(tracks []models.TrackDescriptor, existing map[string]bool) Reconciliation {
	r := Reconciliation{
		Downloaded: []models.TrackDescriptor{},
		Pending:    []models.TrackDescriptor{},
	}
	seen := make(map[string]bool, len(tracks))

	for _, t := range tracks {
		if !t.Valid() {
			continue
		}
		k := Key(t)
		if seen[k] {
			continue
		}
		seen[k] = true

		if existing[k] {
			r.Downloaded = append(r.Downloaded, t)
		} else {
			r.Pending = append(r.Pending, t)
		}
	}
	return r
}

// ReconcileDir is [ExistingKeys] followed by [Reconcile].
func ReconcileDir(fsys afero.Fs, dir string, tracks []models.TrackDescriptor, logger *log.Logger) (Reconciliation, error) {
	existing, err := ExistingKeys(fsys, dir, logger)
	if err != nil {
		return Reconciliation{}, err
	}
	r := Reconcile(tracks, existing)
	shared.WithLogger(logger, "component", "library").Info("reconciled library", "dir", dir, "downloaded", len(r.Downloaded), "pending", len(r.Pending))
	return r, nil
}
