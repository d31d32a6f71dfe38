// Package cursor implements opaque keyset pagination cursors.
//
// A cursor encodes the (created_at, id) position of the last item on a page.
// Callers round-trip it verbatim; the format is not part of the API contract.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pulsehq/backend/pkg/apperr"
)

const (
	// DefaultLimit is used when the caller does not pass a limit.
	DefaultLimit = 50
	// MaxLimit caps the page size.
	MaxLimit = 100
)

// Cursor is a keyset position in a reverse-chronological listing.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// Encode serializes a position into an opaque token.
func Encode(createdAt time.Time, id uuid.UUID) string {
	raw, _ := json.Marshal(Cursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses an opaque token. An empty token yields a nil cursor (first page).
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperr.Invalid("malformed cursor")
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, apperr.Invalid("malformed cursor")
	}
	if c.CreatedAt.IsZero() || c.ID == uuid.Nil {
		return nil, apperr.Invalid("malformed cursor")
	}
	return &c, nil
}

// Parse decodes the cursor and limit query parameters of a listing request.
func Parse(token, limitStr string) (*Cursor, int, error) {
	cur, err := Decode(token)
	if err != nil {
		return nil, 0, err
	}
	limit := 0
	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return nil, 0, apperr.Invalid("limit must be an integer")
		}
	}
	return cur, ClampLimit(limit), nil
}

// ClampLimit normalizes a requested page size into [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
