package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPassword(t *testing.T) {
	// sha256("pw" + "s"), lowercase hex — то, что лаунчер шлёт в базе.
	h := HashPassword("pw", "s")

	assert.Len(t, h, 64)
	assert.Equal(t, h, HashPassword("pw", "s"), "deterministic")
	assert.NotEqual(t, h, HashPassword("pw", "t"), "salt participates")
	assert.NotEqual(t, h, HashPassword("pq", "s"))
	assert.Equal(t, "1ac8abc0e034c5035e23a47e38a1b876a9d261a35a36da79f49c3e1f59b595c5", HashPassword("pw", "s"))
}
