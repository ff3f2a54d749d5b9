// Package pathmatch implements C1: canonicalizing request paths and
// matching a concrete path against a (possibly templated) expected path.
package pathmatch

import (
	"net/url"
	"strings"

	"github.com/rannes/pact-stub-server/internal/direrr"
)

// decodeSegments splits raw on its *raw* "/" characters, decodes each
// piece, collapses empty (duplicate-slash) pieces, and rejects "." / ".."
// segments as traversal attempts. Splitting on the raw string before any
// decoding happens is what keeps a percent-encoded "/" (%2F) inside a
// segment from ever being treated as a separator: it is decoded in place
// and stays part of one segment's value.
func decodeSegments(raw string) ([]string, error) {
	rawSegments := strings.Split(raw, "/")
	segments := make([]string, 0, len(rawSegments))
	for i, seg := range rawSegments {
		if i == 0 {
			continue // leading "" produced by the path's initial "/"
		}
		if seg == "" {
			continue // collapse duplicate "/"
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return nil, direrr.MalformedPath("invalid percent-encoding in segment %q: %v", seg, err)
		}
		if decoded == "." || decoded == ".." {
			return nil, direrr.MalformedPath("path attempts to traverse above root: %q", raw)
		}
		segments = append(segments, decoded)
	}
	return segments, nil
}

// Normalize canonicalizes raw into the flat string used as the exact-
// index key: percent-decoded per segment, duplicate slashes collapsed,
// case and trailing slash preserved. It never attempts to re-derive
// segments from its own output (see Segments) because a decoded %2F
// would then be indistinguishable from a real separator.
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "/", nil
	}
	if !strings.HasPrefix(raw, "/") {
		return "", direrr.MalformedPath("path must be absolute: %q", raw)
	}

	trailingSlash := len(raw) > 1 && strings.HasSuffix(raw, "/")

	segments, err := decodeSegments(raw)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte('/')
	for i, s := range segments {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s)
	}
	if trailingSlash && len(segments) > 0 {
		b.WriteByte('/')
	}
	return b.String(), nil
}

// Segments decodes raw directly into its segment list, the form used for
// templated matching and for the index's pre-parsed PathContexts. Unlike
// Split, it never re-splits an already-decoded string, so a literal
// segment produced by decoding %2F is preserved intact.
func Segments(raw string) ([]string, error) {
	if raw == "" || raw == "/" {
		return nil, nil
	}
	return decodeSegments(raw)
}

// Split breaks an already-normalized *literal* path (one with no
// percent-encoding, e.g. a contract's expected path) into its segments.
// It must not be used on a decoded actual request path — use Segments on
// the raw path instead.
func Split(normalized string) []string {
	trimmed := strings.Trim(normalized, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
