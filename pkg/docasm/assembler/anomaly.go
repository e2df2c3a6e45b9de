package assembler

import "fmt"

// Cause classifies why a unit was dropped.
type Cause string

const (
	CauseTypeMismatch Cause = "type_mismatch"
	CauseBadMetadata  Cause = "bad_metadata"
	CauseBadID        Cause = "bad_id"
	CauseNormalize    Cause = "normalize_failed"
	CausePanic        Cause = "panic"
)

// Anomaly describes a unit that was dropped for a reason other than
// null or empty text. Index is the array position, or 0 for scalars.
type Anomaly struct {
	Cause  Cause
	Column string
	Index  int
	Err    error
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("%s: %s[%d]: %v", a.Cause, a.Column, a.Index, a.Err)
}

func (a Anomaly) Unwrap() error { return a.Err }
