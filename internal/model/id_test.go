package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomIDsAreDistinct(t *testing.T) {
	seen := make(map[NodeID]bool)
	for i := 0; i < 100; i++ {
		id := RandomNodeID()
		require.False(t, seen[id], "duplicate random id")
		require.False(t, id.IsZero())
		seen[id] = true
	}
}

func TestContentIDsAreStable(t *testing.T) {
	a := NodeIDFromContent("test/v1", []byte("ab"), []byte("c"))
	b := NodeIDFromContent("test/v1", []byte("ab"), []byte("c"))
	assert.Equal(t, a, b)

	// Length prefixes keep part boundaries significant.
	c := NodeIDFromContent("test/v1", []byte("a"), []byte("bc"))
	assert.NotEqual(t, a, c)

	// Domains separate otherwise identical content.
	d := NodeIDFromContent("other/v1", []byte("ab"), []byte("c"))
	assert.NotEqual(t, a, d)
}

func TestIDTextRoundTrip(t *testing.T) {
	id := NamedEdgeID("e1")

	text, err := id.MarshalText()
	require.NoError(t, err)
	assert.Len(t, text, 64)
	assert.Equal(t, strings.ToLower(string(text)), string(text))

	parsed, err := ParseEdgeID(string(text))
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, string(text[:8]), id.Short())
}

func TestIDJSONUsesHex(t *testing.T) {
	id := NamedNodeID("n1")
	data, err := json.Marshal(map[string]NodeID{"id": id})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"`+id.String()+`"}`, string(data))

	var back map[string]NodeID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back["id"])
}

func TestParseIDErrors(t *testing.T) {
	_, err := ParseNodeID("abc")
	assert.Error(t, err)

	_, err = ParseNodeID(strings.Repeat("zz", 32))
	assert.Error(t, err)
}

func TestIDOrderingIsBytewise(t *testing.T) {
	var lo, hi NodeID
	lo[0] = 0x01
	hi[0] = 0x02
	assert.True(t, lo.Less(hi))
	assert.Equal(t, 1, hi.Compare(lo))
	assert.Equal(t, 0, lo.Compare(lo))
}

func TestRootIDIsWellKnown(t *testing.T) {
	assert.Equal(t, NodeIDFromContent(DomainRoot, []byte("Universe")), RootID)
	assert.False(t, RootID.IsZero())
}
