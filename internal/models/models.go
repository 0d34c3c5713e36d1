package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Sample is one raw payload captured from a single source during one poll
// cycle. The payload is opaque at collection time; decoding happens only
// when statistics are queried.
type Sample struct {
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
	Tag       string `json:"tag"`
	Payload   []byte `json:"payload"`
}

// Key is the unique store key for this sample.
func (s Sample) Key() string {
	return fmt.Sprintf("%s::%d", s.Tag, s.Timestamp)
}

// ParseKey splits a store key back into its tag and timestamp.
func ParseKey(key string) (tag string, timestamp int64, err error) {
	i := strings.LastIndex(key, "::")
	if i < 0 {
		return "", 0, fmt.Errorf("key %q has no tag separator", key)
	}
	ts, err := strconv.ParseInt(key[i+2:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("key %q has a malformed timestamp", key)
	}
	return key[:i], ts, nil
}

// Tag builds the sample tag for one source kind on one daemon, e.g.
// "ops.osd-3". Kind-only tags (no daemon) are the kind itself.
func Tag(kind, osdID string) string {
	if osdID == "" {
		return kind
	}
	return fmt.Sprintf("%s.osd-%s", kind, osdID)
}

// Source kinds carried in sample tags.
const (
	KindOps       = "ops"
	KindHistoric  = "historic"
	KindPerf      = "perf"
	KindDiskStats = "diskstats"
)
