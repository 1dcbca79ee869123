package store

import "time"

type timestampKind uint8

const (
	kindUnset timestampKind = iota
	kindNative
	kindEpochMillis
)

// Timestamp is a store-assigned point in time. Backends hand it back either as
// a native time value or as milliseconds since the Unix epoch, depending on
// how they persist it. Use Time to get a normalised value.
type Timestamp struct {
	kind   timestampKind
	native time.Time
	millis int64
}

// Native wraps a time value read directly from a backend.
func Native(t time.Time) Timestamp {
	return Timestamp{kind: kindNative, native: t}
}

// EpochMillis wraps milliseconds since the Unix epoch.
func EpochMillis(ms int64) Timestamp {
	return Timestamp{kind: kindEpochMillis, millis: ms}
}

// Time returns the timestamp as a UTC time. The zero Timestamp yields the zero
// time.
func (ts Timestamp) Time() time.Time {
	switch ts.kind {
	case kindNative:
		return ts.native.UTC()
	case kindEpochMillis:
		return time.UnixMilli(ts.millis).UTC()
	default:
		return time.Time{}
	}
}

// UnixMilli returns the timestamp in milliseconds since the Unix epoch.
func (ts Timestamp) UnixMilli() int64 {
	if ts.kind == kindEpochMillis {
		return ts.millis
	}
	return ts.Time().UnixMilli()
}

// IsZero reports whether the timestamp was never set.
func (ts Timestamp) IsZero() bool {
	return ts.kind == kindUnset
}

func (ts Timestamp) String() string {
	if ts.IsZero() {
		return "<unset>"
	}
	return ts.Time().Format(time.RFC3339Nano)
}
