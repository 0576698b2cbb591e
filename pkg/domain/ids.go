// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "zykor/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a RequestID where a ConsentID is expected.
type (
	ConsentID    uuid.UUID
	ProcessingID uuid.UUID
	RequestID    uuid.UUID
	EntryID      uuid.UUID
)

// SubjectID identifies a data subject. Subject identifiers originate in the
// surrounding application (customer ids, loyalty-program ids), so they are
// opaque strings rather than UUIDs minted here.
type SubjectID string

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseConsentID(s string) (ConsentID, error) {
	id, err := parseUUID(s, "consent ID")
	return ConsentID(id), err
}

func ParseProcessingID(s string) (ProcessingID, error) {
	id, err := parseUUID(s, "processing record ID")
	return ProcessingID(id), err
}

func ParseRequestID(s string) (RequestID, error) {
	id, err := parseUUID(s, "request ID")
	return RequestID(id), err
}

func ParseSubjectID(s string) (SubjectID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject ID cannot be empty")
	}
	return SubjectID(trimmed), nil
}

// New functions - mint fresh identifiers for records created here.

func NewConsentID() ConsentID       { return ConsentID(uuid.New()) }
func NewProcessingID() ProcessingID { return ProcessingID(uuid.New()) }
func NewRequestID() RequestID       { return RequestID(uuid.New()) }
func NewEntryID() EntryID           { return EntryID(uuid.New()) }

// String methods - for logging and debugging.

func (id ConsentID) String() string    { return uuid.UUID(id).String() }
func (id ProcessingID) String() string { return uuid.UUID(id).String() }
func (id RequestID) String() string    { return uuid.UUID(id).String() }
func (id EntryID) String() string      { return uuid.UUID(id).String() }
func (id SubjectID) String() string    { return string(id) }

// Text marshalling - UUID-backed types serialize as their canonical string
// form, not as raw bytes, so wire payloads stay readable.

func (id ConsentID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ProcessingID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id RequestID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *ConsentID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ConsentID(u)
	return nil
}

func (id *ProcessingID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ProcessingID(u)
	return nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = RequestID(u)
	return nil
}

func (id *EntryID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = EntryID(u)
	return nil
}

// IsNil checks - used for service-layer validation.

func (id ConsentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ProcessingID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id SubjectID) IsNil() bool    { return id == "" }

// parseUUID is the shared validation logic.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
