// ABOUTME: Error taxonomy shared by the store, history, and analysis layers
// ABOUTME: Sentinels are matched with errors.Is, AnalysisError with errors.As
package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection means an external database, model, or store was unreachable
	ErrConnection = errors.New("connection failed")
	// ErrValidation means the caller supplied a malformed id or request
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the conversation or pair does not exist
	ErrNotFound = errors.New("not found")
	// ErrStorage means the record store failed to read or write
	ErrStorage = errors.New("storage failure")
	// ErrDataIntegrity means stored records violate the pairing invariant
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrInvalidResponse means the model returned an unusable reply
	ErrInvalidResponse = errors.New("invalid model response")
)

// AnalysisError wraps any failure inside an analysis with the scope it ran in
type AnalysisError struct {
	ConversationID string
	Database       string
	Tables         []string
	Stage          string
	Err            error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed at %s (conversation=%s database=%s tables=%s): %v",
		e.Stage, e.ConversationID, e.Database, strings.Join(e.Tables, ","), e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
