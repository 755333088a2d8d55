// Package cassandra implements the ingestion batching core: it turns a
// stream of data point events into row-keyed columns and index mutations
// against a wide-column backend, with an adaptive-batch-size retry loop
// and two bounded caches that gate redundant index writes.
package cassandra

import "sort"

// Tag is a single tag name/value pair.
type Tag struct {
	Name  string
	Value string
}

// TagSet is a lexicographically ordered, immutable set of tags. Two TagSets
// with the same entries in any insertion order compare equal.
type TagSet struct {
	tags []Tag
}

// NewTagSet builds a TagSet from a name->value map, sorting by tag name so
// serialization is deterministic regardless of map iteration order.
func NewTagSet(m map[string]string) TagSet {
	tags := make([]Tag, 0, len(m))
	for k, v := range m {
		tags = append(tags, Tag{Name: k, Value: v})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return TagSet{tags: tags}
}

// Len returns the number of tags.
func (t TagSet) Len() int { return len(t.tags) }

// All returns the tags in sorted order. The returned slice must not be
// mutated by the caller.
func (t TagSet) All() []Tag { return t.tags }

// Equal reports whether two tag sets contain the same name/value pairs,
// independent of insertion order (both are stored sorted, so this is a
// direct slice comparison).
func (t TagSet) Equal(o TagSet) bool {
	if len(t.tags) != len(o.tags) {
		return false
	}
	for i := range t.tags {
		if t.tags[i] != o.tags[i] {
			return false
		}
	}
	return true
}

// DataPoint is one timestamped, typed value.
type DataPoint struct {
	Timestamp int64 // milliseconds since epoch
	Value     any
	DataType  string // dataStoreDataType, e.g. "kairos_long", "kairos_double"
}

// DataPointEvent is a single write request consumed by the batch handler.
type DataPointEvent struct {
	MetricName string
	Tags       TagSet
	DataPoint  DataPoint
	TTLSeconds int // 0 means "use default"
}

// CompletionCallback is invoked exactly once per BatchHandler invocation,
// regardless of success or terminal failure, so the upstream durable queue
// can advance its read pointer. Modeled as a plain function type.
type CompletionCallback func()
