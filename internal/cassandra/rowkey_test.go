package cassandra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowKeyEqualIgnoresTagInsertionOrder(t *testing.T) {
	a := NewRowKey("cpu", "east", 1000, "kairos_double", NewTagSet(map[string]string{"host": "a", "dc": "1"}))
	b := NewRowKey("cpu", "east", 1000, "kairos_double", NewTagSet(map[string]string{"dc": "1", "host": "a"}))

	if !a.Equal(b) {
		t.Fatal("row keys with the same tags in different insertion order should be equal")
	}
	if a.CacheKey() != b.CacheKey() {
		t.Fatal("cache keys should match for equal row keys")
	}
}

func TestRowKeyDiffersByClusterName(t *testing.T) {
	a := NewRowKey("cpu", "east", 1000, "kairos_double", NewTagSet(nil))
	b := NewRowKey("cpu", "west", 1000, "kairos_double", NewTagSet(nil))

	if a.Equal(b) {
		t.Fatal("row keys from different clusters must not be equal")
	}
}

func TestRowKeyDiffersByAnyField(t *testing.T) {
	base := NewRowKey("cpu", "east", 1000, "kairos_double", NewTagSet(map[string]string{"host": "a"}))

	variants := []RowKey{
		NewRowKey("mem", "east", 1000, "kairos_double", NewTagSet(map[string]string{"host": "a"})),
		NewRowKey("cpu", "east", 2000, "kairos_double", NewTagSet(map[string]string{"host": "a"})),
		NewRowKey("cpu", "east", 1000, "kairos_long", NewTagSet(map[string]string{"host": "a"})),
		NewRowKey("cpu", "east", 1000, "kairos_double", NewTagSet(map[string]string{"host": "b"})),
	}
	for i, v := range variants {
		if base.Equal(v) {
			t.Fatalf("variant %d unexpectedly equal to base", i)
		}
	}
}

func TestRowKeySerializeIsDeterministic(t *testing.T) {
	a := NewRowKey("cpu", "east", 1000, "kairos_double", NewTagSet(map[string]string{"z": "1", "a": "2"}))
	b := NewRowKey("cpu", "east", 1000, "kairos_double", NewTagSet(map[string]string{"a": "2", "z": "1"}))

	assert.Equal(t, a.Serialize(), b.Serialize(), "tag insertion order must not affect the serialized byte layout")
}

func TestRowKeySerializeEndsWithTerminator(t *testing.T) {
	k := NewRowKey("cpu", "east", 1000, "kairos_double", NewTagSet(map[string]string{"host": "a"}))
	blob := k.Serialize()
	require.NotEmpty(t, blob, "serialized row key must not be empty")
	assert.Equal(t, byte(0), blob[len(blob)-1], "serialized row key must end with the terminator byte")
}
