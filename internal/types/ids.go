package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ID is a custom type that wraps a UUID string.
// It provides type-safe UUID generation, validation, and serialization
// for report and job identifiers.
type ID string

// NewID generates a new UUID v4 and returns it as an ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID parses and validates a string as a UUID, returning an ID.
// It returns an error if the string is not a valid UUID format.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("ID cannot be empty")
	}

	parsedUUID, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID format: %w", err)
	}

	return ID(parsedUUID.String()), nil
}

// Validate checks if the ID is a valid UUID.
// Returns an error if the ID is invalid or empty.
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}

	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}

	return nil
}

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// IsZero checks if the ID is empty or zero-valued.
func (id ID) IsZero() bool {
	return id == ""
}

// MarshalJSON implements the json.Marshaler interface.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// It deserializes a JSON string into an ID and validates it.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal ID: %w", err)
	}

	if s == "" {
		*id = ""
		return nil
	}

	parsedID, err := ParseID(s)
	if err != nil {
		return err
	}

	*id = parsedID
	return nil
}
