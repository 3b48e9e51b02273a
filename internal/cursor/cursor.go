// Package cursor implements the composite pagination token used to resume a
// windowed listing across an ordered list of collections.
package cursor

import (
	"encoding/base64"
	"encoding/json"
)

// Cursor means "resume scanning collection CollectionIndex starting at
// PageToken". Callers must treat the encoded form as opaque.
type Cursor struct {
	CollectionIndex int    `json:"ci"`
	PageToken       string `json:"pt"`
}

// Start is the start-of-sequence cursor.
var Start = Cursor{}

// Encode packs the cursor into a stable, URL-safe token.
func Encode(collectionIndex int, pageToken string) string {
	raw, err := json.Marshal(Cursor{CollectionIndex: collectionIndex, PageToken: pageToken})
	if err != nil {
		// Cursor marshals two scalars; this cannot fail in practice.
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// Decode unpacks a token. An empty, corrupt, or foreign token never errors:
// it decodes to the start-of-sequence cursor so a bad token degrades to a
// full rescan rather than a crash.
func Decode(s string) Cursor {
	if s == "" {
		return Start
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Start
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Start
	}
	if c.CollectionIndex < 0 {
		return Start
	}
	return c
}

// Encode returns the opaque string form of c.
func (c Cursor) Encode() string {
	return Encode(c.CollectionIndex, c.PageToken)
}
