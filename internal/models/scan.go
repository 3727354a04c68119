package models

import "time"

// FileError is a non-fatal per-file failure collected during a scan.
type FileError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ScanResult summarises one scan invocation of one vault.
type ScanResult struct {
	RunID        string        `json:"run_id"`
	VaultID      int64         `json:"vault_id"`
	StartedAt    time.Time     `json:"started_at"`
	NotesScanned int           `json:"notes_scanned"`
	NotesParsed  int           `json:"notes_parsed"`
	NotesSkipped int           `json:"notes_skipped"`
	NotesRemoved int           `json:"notes_removed"`
	LinksFound   int           `json:"links_found"`
	TagsFound    int           `json:"tags_found"`
	Warnings     []FileError   `json:"warnings,omitempty"`
	Errors       []FileError   `json:"errors"`
	Duration     time.Duration `json:"duration"`
}

// FileMetadata is what the storage layer reports for an eligible file.
type FileMetadata struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}
