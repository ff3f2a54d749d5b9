package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rannes/pact-stub-server/internal/contract"
)

const matchingRulesContract = `{
  "consumer": {"name": "c"},
  "provider": {"name": "p"},
  "interactions": [
    {
      "description": "typed id",
      "request": {
        "method": "POST",
        "path": "/submit",
        "headers": {"Content-Type": "application/json", "X-Request-Id": "x"},
        "body": {"id": "x"},
        "matchingRules": {
          "body": {"$.id": {"matchers": [{"match": "type"}]}},
          "header": {"X-Request-Id": {"matchers": [{"match": "regex", "regex": "^[0-9a-f]{8}$"}]}}
        }
      },
      "response": {"status": 200}
    }
  ]
}`

func TestParsePactFile_buildsRuleSetFromMatchingRules(t *testing.T) {
	set, err := parsePactFile("matching.json", []byte(matchingRulesContract))
	require.NoError(t, err)
	require.Len(t, set, 1)

	rules := set[0].Request.Rules
	rule, ok := rules.Lookup("$.body.id")
	require.True(t, ok)
	assert.Equal(t, contract.RuleType, rule.Kind)

	headerRule, ok := rules.Lookup("$.headers.X-Request-Id")
	require.True(t, ok)
	assert.Equal(t, contract.RuleRegex, headerRule.Kind)
	assert.Equal(t, "^[0-9a-f]{8}$", headerRule.Pattern)
}

func TestParsePactFile_idsAreSourcePrefixed(t *testing.T) {
	set, err := parsePactFile("contracts/a.json", []byte(pingSingle))
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, "contracts/a.json#0", set[0].ID)
}

const pingSingle = `{
  "consumer": {"name": "c"},
  "provider": {"name": "p"},
  "interactions": [
    {"description": "ping", "request": {"method": "GET", "path": "/ping"}, "response": {"status": 200}}
  ]
}`
