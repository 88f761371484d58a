package search

import (
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/resync-ops/resync/internal/store"
)

// Classifier defaults, used when the config leaves them zero.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 30 * time.Minute
)

// conceptualPattern marks queries asking for explanation rather than a
// specific record.
var conceptualPattern = regexp.MustCompile(`(?i)\b(how|why|what\s+is|what\s+are|explain|describe|difference|best\s+practice|overview|mean|meaning|understand)\b`)

// Classifier assigns a QueryClass by inspecting the query for TWS
// identifiers and conceptual phrasing. Results are cached with a TTL
// so repeated queries skip the regex work.
type Classifier struct {
	defaults Weights
	cache    *expirable.LRU[string, QueryClass]
}

// NewClassifier builds a classifier. The defaults argument supplies
// the DEFAULT class weights; size and ttl configure the cache (zero
// values pick the documented defaults, negative size disables caching).
func NewClassifier(defaults Weights, size int, ttl time.Duration) *Classifier {
	c := &Classifier{defaults: defaults}
	if size == 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if size > 0 {
		c.cache = expirable.NewLRU[string, QueryClass](size, nil, ttl)
	}
	return c
}

// Classify returns the query class, its fusion weights, and whether
// the classification came from the cache.
func (c *Classifier) Classify(query string) (QueryClass, Weights, bool) {
	key := normalizeQuery(query)
	if key == "" {
		return ClassDefault, c.defaults, false
	}

	if c.cache != nil {
		if class, ok := c.cache.Get(key); ok {
			return class, WeightsFor(class, c.defaults), true
		}
	}

	class := classify(query)
	if c.cache != nil {
		c.cache.Add(key, class)
	}
	return class, WeightsFor(class, c.defaults), false
}

// classify applies the rules: identifiers pull toward EXACT_MATCH,
// conceptual phrasing toward SEMANTIC, both together give MIXED.
func classify(query string) QueryClass {
	hasIdentifier := store.HasTWSIdentifier(query)
	conceptual := conceptualPattern.MatchString(query)

	switch {
	case hasIdentifier && conceptual:
		return ClassMixed
	case hasIdentifier:
		return ClassExactMatch
	case conceptual:
		return ClassSemantic
	default:
		return ClassDefault
	}
}

// normalizeQuery produces the cache key: trimmed, lowercased, inner
// whitespace collapsed.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
