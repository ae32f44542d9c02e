package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags what a stored reply carries. Text items hold only Text;
// media kinds always carry a resolvable MediaRef and use Text as the
// caption.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindAudio, KindDocument:
		return true
	default:
		return false
	}
}

func (k Kind) IsMedia() bool {
	return k.Valid() && k != KindText
}

// Item is one stored auto-reply.
type Item struct {
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i Item) Validate() error {
	if !i.Kind.Valid() {
		return fmt.Errorf("invalid trigger kind: %q", i.Kind)
	}
	if i.Kind == KindText {
		if strings.TrimSpace(i.Text) == "" {
			return fmt.Errorf("text trigger requires text")
		}
		if i.MediaRef != "" || i.MimeType != "" {
			return fmt.Errorf("text trigger must not carry media")
		}
		return nil
	}
	if strings.TrimSpace(i.MediaRef) == "" {
		return fmt.Errorf("%s trigger requires media_ref", i.Kind)
	}
	return nil
}

// NormalizeKeyword maps a raw keyword to its stored form. Lookups and
// writes both go through this, so "Foo", " foo " and "FOO" address the
// same entry.
func NormalizeKeyword(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
