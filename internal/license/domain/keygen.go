package domain

import (
	"strings"

	"github.com/google/uuid"
)

// KeyGenerator returns a new license key on every call.
type KeyGenerator func() string

const (
	keyGroups    = 4
	keyGroupSize = 4
)

// GenerateKey builds an XXXX-XXXX-XXXX-XXXX key where every group is the
// first four hex characters of a fresh random UUID, upper-cased.
// Keys are not checked for uniqueness here; the licenses.license_key
// unique index rejects the rare collision.
func GenerateKey() string {
	var b strings.Builder
	b.Grow(keyGroups*keyGroupSize + keyGroups - 1)
	for i := 0; i < keyGroups; i++ {
		if i > 0 {
			b.WriteByte('-')
		}
		id := uuid.New()
		b.WriteString(strings.ToUpper(id.String()[:keyGroupSize]))
	}
	return b.String()
}
