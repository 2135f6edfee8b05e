package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	ScanFiles Phase = iota
	ParseFile
	PersistCatalog
	ExportCatalog
	WatchEvent
)

func (p Phase) String() string {
	switch p {
	case ScanFiles:
		return "scan_files"
	case ParseFile:
		return "parse_file"
	case PersistCatalog:
		return "persist_catalog"
	case ExportCatalog:
		return "export_catalog"
	case WatchEvent:
		return "watch_event"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func scanUpdate(dir string, changed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScanFiles,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d new or modified file(s) in %s", changed, dir),
	}
}

func parseUpdate(step, total int, filename string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ParseFile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Parsing %s...", step, total, filename),
	}
}

func parsedUpdate(step, total int, filename string, added int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ParseFile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d new tracks)", step, total, filename, added),
	}
}

func parseFailedUpdate(step, total int, filename string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ParseFile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, filename, err),
	}
}

func persistUpdate(tracks, files int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PersistCatalog,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Saving %d track(s) from %d file(s)...", tracks, files),
	}
}

func exportUpdate(path string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportCatalog,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Wrote %d track(s) to %s", tracks, path),
	}
}

func watchUpdate(reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WatchEvent,
		Step:    1,
		Total:   1,
		Message: "Sync triggered by " + reason,
	}
}
