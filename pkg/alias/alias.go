// Package alias attributes content mentions to curated entities. An
// Index is an immutable lookup built once per scoring pass from the
// persisted entity aliases and passed explicitly to every matcher
// call; there is no shared mutable state between passes.
package alias

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pulseboardhq/pulseboard/internal/store"
	"github.com/pulseboardhq/pulseboard/pkg/ingest"
)

// Match types for aliases.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchRegex    = "regex"

	// ScopeAny matches on every platform.
	ScopeAny = "any"
)

type entry struct {
	entityID string
	scope    string
	text     string
	re       *regexp.Regexp
	weight   float64
}

// Index is a compiled, read-only alias lookup.
type Index struct {
	entries []entry
}

// NewIndex compiles aliases into an index. An alias that fails to
// compile is logged and skipped; one bad row never blocks the pass.
func NewIndex(aliases []store.Alias, log *logrus.Logger) *Index {
	if log == nil {
		log = logrus.StandardLogger()
	}

	ix := &Index{entries: make([]entry, 0, len(aliases))}
	for _, a := range aliases {
		text := strings.ToLower(strings.TrimSpace(a.AliasText))
		if text == "" {
			continue
		}
		if !validScope(a.PlatformScope) {
			log.WithField("alias", a.AliasText).WithField("platform_scope", a.PlatformScope).
				Warn("alias: unknown platform scope, skipping")
			continue
		}
		weight := a.ConfidenceWeight
		if weight == 0 {
			weight = 1.0
		}

		e := entry{
			entityID: a.EntityID,
			scope:    a.PlatformScope,
			text:     text,
			weight:   weight,
		}

		var err error
		switch a.MatchType {
		case MatchExact:
			e.re, err = regexp.Compile(`\b` + regexp.QuoteMeta(text) + `\b`)
		case MatchRegex:
			e.re, err = regexp.Compile(`(?i)` + a.AliasText)
		case MatchContains, "":
			// plain substring, no pattern needed
		default:
			log.WithField("alias", a.AliasText).WithField("match_type", a.MatchType).
				Warn("alias: unknown match type, skipping")
			continue
		}
		if err != nil {
			log.WithError(err).WithField("alias", a.AliasText).Warn("alias: bad pattern, skipping")
			continue
		}

		ix.entries = append(ix.entries, e)
	}
	return ix
}

// validScope accepts ScopeAny, the unset scope, or any known platform.
func validScope(scope string) bool {
	if scope == ScopeAny || scope == "" {
		return true
	}
	for _, p := range ingest.AllPlatforms() {
		if scope == string(p) {
			return true
		}
	}
	return false
}

// Mentions returns entity id -> confidence weight for every entity
// whose alias matches the item's title or channel name on the given
// platform. When several aliases of one entity match, the highest
// weight wins.
func (ix *Index) Mentions(title, channel string, platform ingest.Platform) map[string]float64 {
	haystack := strings.ToLower(title + " " + channel)
	if strings.TrimSpace(haystack) == "" {
		return nil
	}

	var matched map[string]float64
	for _, e := range ix.entries {
		if e.scope != ScopeAny && e.scope != "" && e.scope != string(platform) {
			continue
		}

		ok := false
		if e.re != nil {
			ok = e.re.MatchString(haystack)
		} else {
			ok = strings.Contains(haystack, e.text)
		}
		if !ok {
			continue
		}

		if matched == nil {
			matched = make(map[string]float64)
		}
		if e.weight > matched[e.entityID] {
			matched[e.entityID] = e.weight
		}
	}
	return matched
}

// Size returns how many aliases compiled into the index.
func (ix *Index) Size() int {
	return len(ix.entries)
}
