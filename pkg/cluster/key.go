package cluster

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pulseboardhq/pulseboard/pkg/ingest"
)

// topTokenCount caps how many tokens feed the event key.
const topTokenCount = 8

// TimeBucket floors t to a fixed-width bucket, expressed as the
// bucket's start instant in UTC.
func TimeBucket(t time.Time, width time.Duration) time.Time {
	return t.UTC().Truncate(width)
}

// EventKey derives the deterministic cluster key for a token list and
// publish time: a short hash over the time bucket and the sorted top
// tokens. Two items with the same leading tokens in the same bucket
// share a key. The key is a grouping convenience, not a security
// boundary, so 16 hex chars of the digest are enough.
func EventKey(tokens []string, publishedAt time.Time, bucket time.Duration) string {
	top := tokens
	if len(top) > topTokenCount {
		top = top[:topTokenCount]
	}
	sorted := make([]string, len(top))
	copy(sorted, top)
	sort.Strings(sorted)

	input := fmt.Sprintf("%s|%s",
		TimeBucket(publishedAt, bucket).Format(time.RFC3339),
		strings.Join(sorted, "_"))
	return shortHash(input)
}

// IdentityKey is the fallback key for items whose titles produce no
// tokens: exact (platform, external id) identity.
func IdentityKey(platform ingest.Platform, externalID string) string {
	return shortHash(fmt.Sprintf("%s:%s", platform, externalID))
}

func shortHash(input string) string {
	sum := sha1.Sum([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}
