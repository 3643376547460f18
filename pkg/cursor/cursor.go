// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cursor implements the typed pagination cursor codec used by
`GET /api/v1/feed/activity`.

Format: base64(JSON({d: ISO-8601 timestamp, i: UUID})).
*/
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"regexp"
	"time"
)

// ErrInvalid is returned for any cursor that does not decode to the
// expected shape. Callers decide per-endpoint whether an invalid cursor is
// a 400 or is treated as "no cursor".
var ErrInvalid = errors.New("cursor: invalid format")

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-8][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// Cursor is the decoded pagination position.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

type wireCursor struct {
	D string `json:"d"`
	I string `json:"i"`
}

// Encode renders c as an opaque base64(JSON) string.
func Encode(c Cursor) string {
	body, _ := json.Marshal(wireCursor{
		D: c.Timestamp.UTC().Format(time.RFC3339Nano),
		I: c.ID,
	})
	return base64.URLEncoding.EncodeToString(body)
}

// Decode parses an opaque cursor string, validating the timestamp as
// ISO-8601 and the id as a UUID (versions 1-8, so the platform's UUIDv7 ids pass).
// Any other shape returns
// [ErrInvalid].
func Decode(raw string) (Cursor, error) {
	if raw == "" {
		return Cursor{}, ErrInvalid
	}

	body, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return Cursor{}, ErrInvalid
	}

	var wire wireCursor
	if err := json.Unmarshal(body, &wire); err != nil {
		return Cursor{}, ErrInvalid
	}

	ts, err := time.Parse(time.RFC3339Nano, wire.D)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, wire.D)
		if err != nil {
			return Cursor{}, ErrInvalid
		}
	}

	if !uuidPattern.MatchString(wire.I) {
		return Cursor{}, ErrInvalid
	}

	return Cursor{Timestamp: ts, ID: wire.I}, nil
}
