package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocator(t *testing.T) {
	l := NewLocalLocator("http://media.local:8080/uploads/")

	u, err := l.Locate("promo/spring.mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://media.local:8080/uploads/promo/spring.mp4", u)

	u, _ = l.Locate("/spring.mp4")
	assert.Equal(t, "http://media.local:8080/uploads/spring.mp4", u)

	u, _ = l.Locate("https://cdn.example.com/a.png")
	assert.Equal(t, "https://cdn.example.com/a.png", u)

	u, _ = NewLocalLocator("").Locate("a.png")
	assert.Equal(t, "/a.png", u)
}

func TestSpacesLocatorCDN(t *testing.T) {
	s, err := NewSpacesLocator("https://nyc3.digitaloceanspaces.com", "nyc3", "media", "https://media.cdn.example/", "key", "secret")
	require.NoError(t, err)

	u, err := s.Locate("uploads/clip.webm")
	require.NoError(t, err)
	assert.Equal(t, "https://media.cdn.example/uploads/clip.webm", u)
}

func TestSpacesLocatorPresigns(t *testing.T) {
	s, err := NewSpacesLocator("https://nyc3.digitaloceanspaces.com", "nyc3", "media", "", "key", "secret")
	require.NoError(t, err)

	u, err := s.Locate("uploads/clip.webm")
	require.NoError(t, err)
	assert.Contains(t, u, "uploads/clip.webm")
	assert.Contains(t, u, "X-Amz-Signature=")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentType("a.MP4"))
	assert.Equal(t, "image/jpeg", ContentType("https://cdn/x/photo.jpeg?v=2"))
	assert.Equal(t, "audio/mpeg", ContentType("bed.mp3"))
	assert.Equal(t, "application/octet-stream", ContentType("README"))
}
