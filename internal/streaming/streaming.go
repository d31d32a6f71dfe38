// Package streaming is the collaborator that turns an opaque stream credential
// into a deliverable playback URL. Media delivery itself happens elsewhere;
// nothing in this package has side effects.
package streaming

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const keyBytes = 24

// Provider mints stream credentials and derives playback URLs from them.
type Provider struct {
	baseURL string
}

// NewProvider creates a streaming provider rooted at baseURL
// (e.g. https://live.example.com/hls).
func NewProvider(baseURL string) *Provider {
	return &Provider{baseURL: strings.TrimRight(baseURL, "/")}
}

// NewStreamKey mints a fresh opaque stream credential.
func (p *Provider) NewStreamKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate stream key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// PlaybackURL derives the playback URL for a credential. Pure function: the
// same key always maps to the same URL.
func (p *Provider) PlaybackURL(streamKey string) string {
	return p.baseURL + "/" + streamKey + "/index.m3u8"
}
