// package formatter reads Exportify CSV files and writes the track catalog as JSON, CSV or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/spf13/afero"
)

const (
	colArtists = "Artist Name(s)"
	colArtist  = "Artist"
	colTrack   = "Track Name"
	colTitle   = "Track"
	colAlbum   = "Album Name"
	colURI     = "Track URI"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseExportifyCSV reads an Exportify export into descriptors in row order.
//
// Rows without an artist or title are skipped. A header lacking both artist and title columns
// is an error. An empty input yields no tracks.
func ParseExportifyCSV(r io.Reader) ([]models.TrackDescriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []models.TrackDescriptor{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading csv header: %v", shared.ErrInvalidInput, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}

	artistIdx, okArtist := firstColumn(cols, colArtists, colArtist)
	titleIdx, okTitle := firstColumn(cols, colTrack, colTitle)
	if !okArtist || !okTitle {
		return nil, fmt.Errorf("%w: csv needs %q (or %q) and %q (or %q) columns", shared.ErrInvalidInput, colArtists, colArtist, colTrack, colTitle)
	}
	albumIdx, okAlbum := cols[colAlbum]
	uriIdx, okURI := cols[colURI]

	tracks := []models.TrackDescriptor{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: %v", shared.ErrInvalidInput, line, err)
		}

		track := models.TrackDescriptor{
			Artist: NormalizeArtists(field(record, artistIdx, true)),
			Title:  field(record, titleIdx, true),
			Album:  field(record, albumIdx, okAlbum),
			// URI column is optional in hand-made files
			SourceURI: field(record, uriIdx, okURI),
		}
		if !track.Valid() {
			continue
		}
		tracks = append(tracks, track)
	}

	return tracks, nil
}

// ReadExportifyFile parses the CSV at path on fsys.
func ReadExportifyFile(fsys afero.Fs, path string) ([]models.TrackDescriptor, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return ParseExportifyCSV(f)
}

// NormalizeArtists splits a multi-artist field on ";" (or "," when no ";" is present), drops
// blanks and case-insensitive repeats, and joins the rest with ", ".
func NormalizeArtists(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}

	seen := map[string]bool{}
	var parts []string
	for _, p := range strings.Split(raw, sep) {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, p)
	}

	if len(parts) == 0 {
		return raw
	}
	return strings.Join(parts, ", ")
}

func firstColumn(cols map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func field(record []string, idx int, ok bool) string {
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

type catalogFile struct {
	Tracks []models.TrackDescriptor `json:"tracks"`
}

// ExportToJSON renders tracks as {"tracks": [...]}.
func ExportToJSON(tracks []models.TrackDescriptor) ([]byte, error) {
	if tracks == nil {
		tracks = []models.TrackDescriptor{}
	}
	data, err := json.MarshalIndent(catalogFile{Tracks: tracks}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadCatalogJSON reads a {"tracks": [...]} document, skipping incomplete entries.
func ReadCatalogJSON(r io.Reader) ([]models.TrackDescriptor, error) {
	var doc catalogFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decoding catalog: %v", shared.ErrInvalidInput, err)
	}

	tracks := make([]models.TrackDescriptor, 0, len(doc.Tracks))
	for _, t := range doc.Tracks {
		if t.Valid() {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

// ExportToCSV renders tracks with Exportify column names so the output can be fed back to
// [ParseExportifyCSV].
func ExportToCSV(tracks []models.TrackDescriptor) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{colArtists, colTrack, colAlbum, colURI}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{track.Artist, track.Title, track.Album, track.SourceURI}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToText renders a numbered "Artist - Title" list.
func ExportToText(tracks []models.TrackDescriptor) []byte {
	var buf bytes.Buffer
	for i, track := range tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist, track.Title)
	}
	return buf.Bytes()
}

// WriteCatalog writes tracks to path: CSV for .csv, a numbered list for .txt, JSON otherwise.
func WriteCatalog(fsys afero.Fs, path string, tracks []models.TrackDescriptor) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		data, err = ExportToCSV(tracks)
	case ".txt":
		data = ExportToText(tracks)
	default:
		data, err = ExportToJSON(tracks)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

// ReadTracksFile loads descriptors from a catalog JSON file or an Exportify CSV.
func ReadTracksFile(fsys afero.Fs, path string) ([]models.TrackDescriptor, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadExportifyFile(fsys, path)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadCatalogJSON(f)
}
