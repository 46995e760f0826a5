package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldVersion, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldVersion, oldSHA, oldTime })

	assert.Equal(t, "depthscan dev (unknown, built unknown)", String())

	Version, GitSHA, BuildTime = "v0.3.0", "0123456789abcdef", "2024-03-09T12:00:00Z"
	assert.Equal(t, "depthscan v0.3.0 (0123456, built 2024-03-09T12:00:00Z)", String())
}
