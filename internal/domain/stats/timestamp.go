package stats

import (
	"encoding/json"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/okian/frameit/internal/domain/model"
)

const nanosPerMilli = int64(time.Millisecond)

// NormalizeTimestamp converts the timestamp representations found in stored
// records to epoch milliseconds.
//
// Accepted forms:
//   - document timestamps: *timestamppb.Timestamp, model.DocumentTimestamp,
//     or a decoded JSON object with seconds/nanoseconds (optionally
//     underscore-prefixed)
//   - native dates: time.Time, *time.Time, RFC3339 strings
//   - raw epoch milliseconds: int, int64, float64, json.Number
//
// The second return value is false when v is none of these.
func NormalizeTimestamp(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil {
			return 0, false
		}
		return NormalizeTimestamp(*t)
	case *timestamppb.Timestamp:
		if t == nil || t.CheckValid() != nil {
			return 0, false
		}
		return t.AsTime().UnixMilli(), true
	case model.DocumentTimestamp:
		return docMillis(t.Seconds, int64(t.Nanoseconds)), true
	case *model.DocumentTimestamp:
		if t == nil {
			return 0, false
		}
		return docMillis(t.Seconds, int64(t.Nanoseconds)), true
	case map[string]any:
		return mapMillis(t)
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return 0, false
		}
		return parsed.UnixMilli(), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return NormalizeTimestamp(f)
	default:
		return 0, false
	}
}

func docMillis(seconds, nanos int64) int64 {
	return seconds*1000 + nanos/nanosPerMilli
}

// mapMillis handles document timestamps that went through a generic JSON
// decode, e.g. {"seconds": 1700000000, "nanoseconds": 0} or the
// {"_seconds": ..., "_nanoseconds": ...} export form.
func mapMillis(m map[string]any) (int64, bool) {
	secRaw, ok := m["seconds"]
	if !ok {
		secRaw, ok = m["_seconds"]
	}
	if !ok {
		return 0, false
	}
	sec, ok := NormalizeTimestamp(secRaw)
	if !ok {
		return 0, false
	}

	var nanos int64
	nanoRaw, ok := m["nanoseconds"]
	if !ok {
		nanoRaw, ok = m["_nanoseconds"]
	}
	if ok {
		if n, valid := NormalizeTimestamp(nanoRaw); valid {
			nanos = n
		}
	}
	return docMillis(sec, nanos), true
}
