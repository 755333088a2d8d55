package cassandra

import (
	"bytes"
	"encoding/binary"
)

// RowKey identifies one wide row: metric name, cluster name, row time, the
// data type tag, and an ordered tag set. Equality and hashing use all five
// fields. RowKeys are immutable after construction; the zero value is not
// meaningful, always use NewRowKey.
type RowKey struct {
	MetricName string
	ClusterName string
	RowTime    int64
	DataType   string
	Tags       TagSet

	serialized string // cached, computed once in NewRowKey
}

// NewRowKey builds a RowKey and eagerly computes its serialized form so
// equality checks and map keys are cheap afterward.
func NewRowKey(metricName, clusterName string, rowTime int64, dataType string, tags TagSet) RowKey {
	k := RowKey{
		MetricName:  metricName,
		ClusterName: clusterName,
		RowTime:     rowTime,
		DataType:    dataType,
		Tags:        tags,
	}
	k.serialized = string(k.Serialize())
	return k
}

// Serialize produces the bit-exact wire form of the row key (spec.md §6):
//
//	[utf8 metricName][0x00][utf8 dataType][0x00][i64 big-endian rowTime]
//	[sorted tag entries: utf8 key 0x00 utf8 value 0x00][terminator 0x00]
//
// Two row keys are equal iff their serialized forms are byte-identical.
func (k RowKey) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(k.MetricName)
	buf.WriteByte(0)
	buf.WriteString(k.DataType)
	buf.WriteByte(0)

	var rowTimeBytes [8]byte
	binary.BigEndian.PutUint64(rowTimeBytes[:], uint64(k.RowTime))
	buf.Write(rowTimeBytes[:])

	for _, tag := range k.Tags.All() {
		buf.WriteString(tag.Name)
		buf.WriteByte(0)
		buf.WriteString(tag.Value)
		buf.WriteByte(0)
	}
	buf.WriteByte(0)

	return buf.Bytes()
}

// Equal reports whether two row keys serialize identically. Note the
// cluster name is part of RowKey but intentionally not part of the wire
// serialization (the backend keyspace is already scoped to one cluster);
// Equal therefore also compares ClusterName directly so two keys from
// different clusters with otherwise identical fields never compare equal.
func (k RowKey) Equal(o RowKey) bool {
	return k.ClusterName == o.ClusterName && k.serialized == o.serialized
}

// CacheKey returns a comparable value suitable for use as a map key /
// BoundedCache key, combining the cluster name with the serialized form.
func (k RowKey) CacheKey() string {
	return k.ClusterName + "\x00" + k.serialized
}

// TimedString pairs a metric name with a row time. It is the cache key used
// to re-index a metric name once per row bucket rather than once per event.
type TimedString struct {
	Name    string
	RowTime int64
}
