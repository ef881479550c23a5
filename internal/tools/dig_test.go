package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectName(t *testing.T) {
	assert.Equal(t, "example.com", SubjectName("example.com", "cdn.example.com", false))
	assert.Equal(t, "cdn.example.com", SubjectName("example.com", "cdn.example.com", true))
	assert.Equal(t, "example.com", SubjectName("example.com", "", true))
}
