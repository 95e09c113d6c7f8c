package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns prefix_<32 hex chars> built from a UUIDv7, so ids minted by
// one process sort by creation time. Prefixes name the entity in logs
// (doc_, shr_, lck_, ver_, msg_, usr_).
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}
