package domain

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyPattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestGenerateKeyFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		key := GenerateKey()
		require.Len(t, key, 19)
		assert.Regexp(t, keyPattern, key)
	}
}

func TestGenerateKeyVaries(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		seen[GenerateKey()] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}
