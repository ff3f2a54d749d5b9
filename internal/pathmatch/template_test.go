package pathmatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rannes/pact-stub-server/internal/contract"
	"github.com/rannes/pact-stub-server/internal/pathmatch"
)

func TestMatchTemplated_binding(t *testing.T) {
	b, ok := pathmatch.MatchTemplated([]string{"users", "{id}"}, []string{"users", "42"}, nil)
	assert.True(t, ok)
	assert.Equal(t, "42", b["id"])
}

func TestMatchTemplated_segmentCountMismatch(t *testing.T) {
	_, ok := pathmatch.MatchTemplated([]string{"users", "{id}"}, []string{"users"}, nil)
	assert.False(t, ok)
}

func TestMatchTemplated_greedyTail(t *testing.T) {
	b, ok := pathmatch.MatchTemplated([]string{"static", "*"}, []string{"static", "css", "app.css"}, nil)
	assert.True(t, ok)
	assert.Empty(t, b)
}

func TestMatchTemplated_literalMismatch(t *testing.T) {
	_, ok := pathmatch.MatchTemplated([]string{"users", "{id}"}, []string{"accounts", "42"}, nil)
	assert.False(t, ok)
}

func TestMatchTemplated_ruleOverridesSegment(t *testing.T) {
	rules := contract.RuleSet{
		"$.path[1]": {Kind: contract.RuleRegex, Pattern: `^\d+$`},
	}
	_, ok := pathmatch.MatchTemplated([]string{"users", "{id}"}, []string{"users", "abc"}, rules)
	assert.False(t, ok)

	b, ok := pathmatch.MatchTemplated([]string{"users", "{id}"}, []string{"users", "42"}, rules)
	assert.True(t, ok)
	assert.Equal(t, "42", b["id"])
}

func TestMatchTemplated_emptySegmentNeverMatchesVariable(t *testing.T) {
	_, ok := pathmatch.MatchTemplated([]string{"users", "{id}"}, []string{"users", ""}, nil)
	assert.False(t, ok)
}
