package storage

import "fmt"

// SchemaMismatchError reports an artifact the current loader cannot use.
type SchemaMismatchError struct {
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("storage: schema mismatch: %s", e.Reason)
}
