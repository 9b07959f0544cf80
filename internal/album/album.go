// Package album publishes finished composites to user-visible storage.
package album

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrPermissionDenied means the user has not granted access to the
	// album. It is recoverable by changing a setting.
	ErrPermissionDenied = errors.New("album permission denied")

	// ErrStorageFailure covers every other failure to persist the file.
	ErrStorageFailure = errors.New("album storage failure")
)

// Sink persists a finished file and returns where it ended up.
type Sink interface {
	Save(ctx context.Context, path string) (string, error)
}

// Close releases whatever session a sink holds. Sinks without one are
// left alone.
func Close(ctx context.Context, sink Sink) error {
	if c, ok := sink.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

// Slug converts a title into a lower-case ASCII file name fragment
// (e.g., "Léto u moře" -> "leto-u-more").
func Slug(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, _ := transform.String(t, title)

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
