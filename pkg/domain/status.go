package domain

import (
	"encoding/json"
	"fmt"
)

// ApplicationStatus is the closed set of stored scheduled-application states.
// Cancellation deletes the record and has no stored status.
type ApplicationStatus string

// Stored application statuses.
const (
	StatusPending   ApplicationStatus = "pending"
	StatusCompleted ApplicationStatus = "completed"
	StatusRefunded  ApplicationStatus = "refunded"
)

// Valid reports whether s is a known, set status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRefunded:
		return true
	}
	return false
}

// Unset reports whether the status field was absent in a stored record.
// Such records must be migrated before use.
func (s ApplicationStatus) Unset() bool {
	return s == ""
}

// ParseApplicationStatus parses a status string.
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	s := ApplicationStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown application status %q", raw)
	}
	return s, nil
}

// UnmarshalJSON rejects unknown statuses. An empty or missing status decodes
// to the unset value so that snapshot migration can repair it explicitly.
func (s *ApplicationStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = ""
		return nil
	}
	parsed, err := ParseApplicationStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
