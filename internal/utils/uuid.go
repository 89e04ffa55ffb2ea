package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID string
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateObjectName returns a unique object name with the given suffix,
// e.g. "3f0c...e1.snappy.parquet".
func GenerateObjectName(suffix string) string {
	return uuid.New().String() + suffix
}
