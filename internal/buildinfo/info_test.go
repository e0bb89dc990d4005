package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	old := Version
	Version = "v1.2.0"
	t.Cleanup(func() { Version = old })

	info := Get()
	assert.Equal(t, "v1.2.0", info.Version)
	assert.Equal(t, "v1.2.0 (commit: none, built: unknown)", info.String())
}
