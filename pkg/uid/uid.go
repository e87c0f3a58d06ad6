package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// FileName generates an opaque stored-file name with the given extension
// (e.g. ".pdf"). The original upload name is kept only as metadata.
func FileName(ext string) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "") + ext
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
