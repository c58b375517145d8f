package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHTTPURLAcceptsHTTPAndHTTPS(t *testing.T) {
	assert.NoError(t, validateHTTPURL("http://example.com"))
	assert.NoError(t, validateHTTPURL("https://example.com/app"))
}

func TestValidateHTTPURLRejectsOtherSchemes(t *testing.T) {
	for _, in := range []string{"ftp://example.com", "example.com", "", "ws://example.com"} {
		assert.Error(t, validateHTTPURL(in), "expected rejection for %q", in)
	}
}
