package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCurlWriteOut(t *testing.T) {
	out := []byte("<html>body</html>\n200 text/html; charset=utf-8")
	body, code, contentType := splitCurlWriteOut(out)

	assert.Equal(t, "<html>body</html>", string(body))
	assert.Equal(t, 200, code)
	assert.Equal(t, "text/html; charset=utf-8", contentType)
}

func TestSplitCurlWriteOutNoTrailer(t *testing.T) {
	out := []byte("no newline here")
	body, code, contentType := splitCurlWriteOut(out)

	assert.Equal(t, "no newline here", string(body))
	assert.Equal(t, 0, code)
	assert.Equal(t, "", contentType)
}
