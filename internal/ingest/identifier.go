package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier reports a submission whose identifier cannot be
// canonicalized.
var ErrInvalidIdentifier = errors.New("invalid identifier")

const canonicalScheme = "media://"

// idPattern bounds the bare identifier: URL-safe characters, long enough to
// be meaningful, short enough to index.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// CanonicalExternalID reduces the accepted submission forms to the canonical
// media://<id> representation:
//
//	media://<id>
//	http(s) URLs carrying the id in a v= or id= query parameter
//	http(s) URLs carrying the id as the final path segment
func CanonicalExternalID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidIdentifier)
	}

	if rest, ok := strings.CutPrefix(raw, canonicalScheme); ok {
		if !idPattern.MatchString(rest) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
		}
		return canonicalScheme + rest, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}

	query := parsed.Query()
	for _, key := range []string{"v", "id"} {
		if id := strings.TrimSpace(query.Get(key)); id != "" {
			if !idPattern.MatchString(id) {
				return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
			}
			return canonicalScheme + id, nil
		}
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if last := segments[len(segments)-1]; last != "" && idPattern.MatchString(last) {
		return canonicalScheme + last, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
}
