// Package apperr defines the error taxonomy shared by the scan and analysis
// pipeline.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrVaultNotFound = errors.New("vault not found")
	ErrVaultLocked   = errors.New("vault is locked by another scan")
)

// ParseError is recorded per file. It never aborts a scan.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ResolutionAmbiguity reports a reference that matched more than one note
// under a single strategy. The first candidate in index order wins; this is
// a warning, not a failure.
type ResolutionAmbiguity struct {
	SourceNoteID int64
	RawTarget    string
	Strategy     string
	ChosenID     int64
	Candidates   []int64
}

func (a *ResolutionAmbiguity) Error() string {
	ids := make([]string, len(a.Candidates))
	for i, c := range a.Candidates {
		ids[i] = fmt.Sprint(c)
	}
	return fmt.Sprintf("ambiguous reference %q (%s): chose %d from [%s]",
		a.RawTarget, a.Strategy, a.ChosenID, strings.Join(ids, ","))
}

// AnalysisError is fatal for one vault's analysis run. The previously
// persisted metrics snapshot stays authoritative.
type AnalysisError struct {
	VaultID int64
	Stage   string
	Err     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of vault %d failed at %s: %v", e.VaultID, e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// PersistenceError names the operation and the entity it was working on.
type PersistenceError struct {
	Op     string
	Entity string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("index: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persist wraps err in a PersistenceError. A nil err stays nil.
func Persist(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Entity: entity, Err: err}
}
