package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQueryClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  QueryClass
	}{
		{"job name", "status of AWSBH001", ClassExactMatch},
		{"return code", "job ended rc=8", ClassExactMatch},
		{"message id", "EQQ3120E in the controller log", ClassExactMatch},
		{"conceptual how", "how does carry forward work", ClassSemantic},
		{"conceptual why", "why would a job stay in READY", ClassSemantic},
		{"best practice", "best practice for calendar maintenance", ClassSemantic},
		{"identifier plus concept", "why does AWSBH001 keep abending", ClassMixed},
		{"rc plus explain", "explain rc=8 on the daily close", ClassMixed},
		{"bare keywords", "daily close schedule calendar", ClassDefault},
	}

	c := NewClassifier(Weights{Vector: 0.6, Keyword: 0.4}, 0, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, _, _ := c.Classify(tt.query)
			assert.Equal(t, tt.want, class, "query %q", tt.query)
		})
	}
}

func TestClassifyWeights(t *testing.T) {
	t.Parallel()

	defaults := Weights{Vector: 0.6, Keyword: 0.4}
	c := NewClassifier(defaults, 0, 0)

	_, w, _ := c.Classify("status of AWSBH001")
	assert.Equal(t, Weights{Vector: 0.2, Keyword: 0.8}, w)

	_, w, _ = c.Classify("how does carry forward work")
	assert.Equal(t, Weights{Vector: 0.8, Keyword: 0.2}, w)

	_, w, _ = c.Classify("why does AWSBH001 keep abending")
	assert.Equal(t, Weights{Vector: 0.5, Keyword: 0.5}, w)

	_, w, _ = c.Classify("daily close schedule")
	assert.Equal(t, defaults, w)
}

func TestClassifyCachesNormalizedQuery(t *testing.T) {
	t.Parallel()

	c := NewClassifier(Weights{Vector: 0.6, Keyword: 0.4}, 10, time.Minute)

	_, _, cached := c.Classify("Status of AWSBH001")
	assert.False(t, cached)

	// Same query modulo case and whitespace hits the cache.
	class, _, cached := c.Classify("  status OF awsbh001 ")
	assert.True(t, cached)
	assert.Equal(t, ClassExactMatch, class)
}

func TestClassifyEmptyQuery(t *testing.T) {
	t.Parallel()

	defaults := Weights{Vector: 0.6, Keyword: 0.4}
	c := NewClassifier(defaults, 0, 0)

	class, w, cached := c.Classify("   ")
	assert.Equal(t, ClassDefault, class)
	assert.Equal(t, defaults, w)
	assert.False(t, cached)
}
