package watchlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice_99", Normalize("  Alice_99 "))
	assert.Equal(t, "bob", Normalize("BOB"))
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"alice", "alice_99", "a", "0_0"} {
		assert.True(t, ValidName(name), name)
	}
	// Names become filesystem paths and URL segments.
	for _, name := range []string{"", "a b", "alice/bob", "../../etc/passwd", "ali%ce", "Alice", "a.b"} {
		assert.False(t, ValidName(name), name)
	}
}
