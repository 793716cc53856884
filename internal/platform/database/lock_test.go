package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLockID(t *testing.T) {
	a := GenerateLockID("documindr", "migrate")
	b := GenerateLockID("documindr", "migrate")
	c := GenerateLockID("documindr", "ingest")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
