package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random id such as "crd-3f2a9c0e4b7d4e1f9a2b6c8d0e1f2a3b".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
