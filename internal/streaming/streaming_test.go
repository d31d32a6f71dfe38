package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStreamKey(t *testing.T) {
	p := NewProvider("https://live.test/hls")

	a, err := p.NewStreamKey()
	assert.Nil(t, err)
	assert.Len(t, a, keyBytes*2)

	b, err := p.NewStreamKey()
	assert.Nil(t, err)
	assert.NotEqual(t, a, b)
}

func TestPlaybackURL(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		p := NewProvider("https://live.test/hls")
		assert.Equal(t, "https://live.test/hls/abc/index.m3u8", p.PlaybackURL("abc"))
		assert.Equal(t, p.PlaybackURL("abc"), p.PlaybackURL("abc"))
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		p := NewProvider("https://live.test/hls/")
		assert.Equal(t, "https://live.test/hls/abc/index.m3u8", p.PlaybackURL("abc"))
	})
}
