// Package topic implements the starling topic grammar: validation of
// concrete topics and wildcard patterns, compilation of patterns to
// matchers, and the coarse upstream-prefix computation the nexus relay
// uses as its byte-prefix subscription filter.
//
// Grounded on original_source/starling/subscription.py's to_regex and
// original_source/starling/publication.py's VALID_TOPIC_PATTERN.
package topic

import (
	"regexp"
	"strings"

	"github.com/starling-mesh/starling/pkg/starlingerr"
)

// Delim is the dot that separates topic segments.
const Delim = "."

// grammar matches a non-empty dot-delimited string whose segments are each
// either a run of characters excluding '.', '*', '#', or a bare '*'/'#'
// wildcard token occupying the whole segment.
var grammar = regexp.MustCompile(`^(([^.*#]+)|[*#])(\.([^.*#]+|[*#]))*$`)

// Validate reports whether topic is a syntactically valid topic string
// (concrete or pattern). It does not distinguish the two; use IsConcrete
// for that.
func Validate(topic string) bool {
	if topic == "" {
		return false
	}
	return grammar.MatchString(topic)
}

// MustValidate returns starlingerr.InvalidTopic when topic fails the
// grammar, for use at the boundary of Send/Subscribe calls.
func MustValidate(topic string) error {
	if !Validate(topic) {
		return &starlingerr.InvalidTopic{Topic: topic}
	}
	return nil
}

// IsConcrete reports whether topic contains no wildcard segment. Callers
// should validate before calling IsConcrete.
func IsConcrete(topic string) bool {
	for _, seg := range strings.Split(topic, Delim) {
		if seg == "*" || seg == "#" {
			return false
		}
	}
	return true
}

// Matcher answers whether a concrete topic is accepted by a compiled
// pattern.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// Compile converts a validated pattern into a Matcher. The caller must
// have already validated pattern with Validate; Compile does not
// re-validate.
func Compile(pattern string) *Matcher {
	// regexp.QuoteMeta does not escape '#' (it isn't one of Go's special
	// regexp bytes, unlike Python's re.escape, which to_regex in
	// subscription.py relies on); escape it ourselves before the wildcard
	// substitutions below so they have a literal '\#' to find.
	escaped := strings.ReplaceAll(regexp.QuoteMeta(pattern), "#", `\#`)

	// Order matters: the anchored '.#'/'#.' forms must be substituted
	// before the bare '#' case, mirroring to_regex in subscription.py.
	escaped = strings.ReplaceAll(escaped, `\*`, `[^.]+`)
	escaped = strings.ReplaceAll(escaped, `\.\#`, `(\.[^.]+)*`)
	escaped = strings.ReplaceAll(escaped, `\#\.`, `([^.]+\.)*`)
	escaped = strings.ReplaceAll(escaped, `\#`, `.*`)

	return &Matcher{
		pattern: pattern,
		re:      regexp.MustCompile("^" + escaped + "$"),
	}
}

// Match reports whether concrete (which must itself be a concrete topic)
// is accepted by the pattern this Matcher was compiled from.
func (m *Matcher) Match(concrete string) bool {
	return m.re.MatchString(concrete)
}

// Pattern returns the original pattern string the Matcher was compiled
// from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// UpstreamPrefix computes the coarse, broker-visible subscription prefix
// for pattern: the longest concrete prefix before the first wildcard
// segment, with its trailing delimiter stripped. A pattern whose first
// segment is itself a wildcard yields the empty string — a subscribe-all
// that pushes the full filtering burden onto the client. This is
// correct but expensive on busy networks.
func UpstreamPrefix(pattern string) string {
	segs := strings.Split(pattern, Delim)
	for i, seg := range segs {
		if seg == "*" || seg == "#" {
			return strings.Join(segs[:i], Delim)
		}
	}
	return pattern
}
