package redis

import (
	"strings"
)

type keys struct {
	prefix string
}

func newKeys(prefix string) *keys {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &keys{prefix: prefix}
}

// record returns the key of the hash holding a record
func (k *keys) record(kind, id string) string {
	return k.prefix + "record:" + kind + ":" + id
}

// index returns the key of the sorted set of record ids with the given index value, scored by insertion
// sequence
func (k *keys) index(kind, name, value string) string {
	return k.prefix + "index:" + kind + ":" + name + ":" + value
}

// sequence is the counter assigning insertion sequences
func (k *keys) sequence() string {
	return k.prefix + "sequence"
}

// pendingChannel is the pub/sub channel signaling committed pending work
func (k *keys) pendingChannel() string {
	return k.prefix + "pending"
}
