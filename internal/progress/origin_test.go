package progress

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, ParseOrigins(" https://a.example, ,https://b.example "))
	assert.Nil(t, ParseOrigins(""))
}

func TestOriginChecker(t *testing.T) {
	dev := OriginChecker(false, nil)
	prod := OriginChecker(true, []string{"https://app.example"})

	r := httptest.NewRequest("GET", "/api/v1/progress/x", nil)
	assert.True(t, dev(r))
	assert.False(t, prod(r))

	r.Header.Set("Origin", "https://app.example")
	assert.True(t, prod(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, prod(r))
}
