// Package naming derives protocol safe room slugs from display names.
package naming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"rtchat-service/internal/apperr"
)

// DefaultMaxAttempts bounds the number of candidates tried for a single base.
const DefaultMaxAttempts = 100

// FallbackBase is used when a display name has no slug-safe characters.
const FallbackBase = "room"

// Slugify lowercases text, drops everything outside [a-z0-9 -], turns whitespace runs
// into a single hyphen and collapses repeated hyphens. Leading and trailing hyphens
// are trimmed.
func Slugify(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	pendingHyphen := false
	for _, r := range strings.ToLower(text) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingHyphen = true
		}
	}
	return b.String()
}

// Candidate returns the n-th slug tried for base: base itself, then base-1, base-2, ...
func Candidate(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}

// ClaimFunc atomically inserts a record under slug. It returns apperr.ErrSlugTaken
// when another record already owns the slug.
type ClaimFunc func(ctx context.Context, slug string) error

// Generator resolves unique slugs by claiming successive candidates.
type Generator struct {
	MaxAttempts int
}

// NewGenerator constructs a Generator. A non-positive maxAttempts uses DefaultMaxAttempts.
func NewGenerator(maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{MaxAttempts: maxAttempts}
}

// Unique claims base, base-1, base-2, ... until claim succeeds. It never trusts a prior
// existence check: each candidate is decided by the claim itself. When every attempt
// collides, the error wraps apperr.ErrConflict.
func (g *Generator) Unique(ctx context.Context, base string, claim ClaimFunc) (string, error) {
	if base == "" {
		base = FallbackBase
	}
	for n := 0; n < g.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		slug := Candidate(base, n)
		err := claim(ctx, slug)
		if err == nil {
			return slug, nil
		}
		if !errors.Is(err, apperr.ErrSlugTaken) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: no free slug for %q after %d attempts", apperr.ErrConflict, base, g.MaxAttempts)
}

// Random claims freshly generated opaque slugs, used for private rooms.
func (g *Generator) Random(ctx context.Context, claim ClaimFunc) (string, error) {
	for n := 0; n < g.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		slug := RandomSlug()
		err := claim(ctx, slug)
		if err == nil {
			return slug, nil
		}
		if !errors.Is(err, apperr.ErrSlugTaken) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: no free private slug after %d attempts", apperr.ErrConflict, g.MaxAttempts)
}

// RandomSlug returns a lowercase uuid-based slug.
func RandomSlug() string {
	return "dm-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
