package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullWithoutMetadata(t *testing.T) {
	assert.Equal(t, Version, Full())
}

func TestFullWithMetadata(t *testing.T) {
	oldCommit, oldTime := GitCommit, BuildTime
	defer func() { GitCommit, BuildTime = oldCommit, oldTime }()

	GitCommit = "1a2b3c4"
	BuildTime = "2026-01-02"
	assert.Equal(t, Version+" (1a2b3c4, 2026-01-02)", Full())

	BuildTime = "unknown"
	assert.Equal(t, Version+" (1a2b3c4)", Full())
}
