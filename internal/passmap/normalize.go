// Package passmap converts loosely typed pass documents into validated passes.
package passmap

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// secondsGetter covers timestamp types other than timestamppb that expose whole seconds.
type secondsGetter interface {
	GetSeconds() int64
}

// EpochSeconds coerces v into non-negative epoch seconds.
// Integers convert directly, floats truncate toward zero, timestamp values drop sub-second precision.
// Every other shape (strings, maps, nil, negative values) reports false.
func EpochSeconds(v any) (int64, bool) {
	n, ok := wholeNumber(v)
	if !ok {
		switch t := v.(type) {
		case time.Time:
			n, ok = t.Unix(), true
		case *time.Time:
			if t != nil {
				n, ok = t.Unix(), true
			}
		case *timestamppb.Timestamp:
			if t != nil {
				n, ok = t.GetSeconds(), true
			}
		case secondsGetter:
			if rv := reflect.ValueOf(t); rv.Kind() != reflect.Pointer || !rv.IsNil() {
				n, ok = t.GetSeconds(), true
			}
		}
	}
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

// wholeNumber coerces numeric values to int64, truncating fractions.
func wholeNumber(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return fromUint(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return fromUint(n)
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case json.Number:
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		return fromFloat(f)
	}
	return 0, false
}

func fromUint(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func fromFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t >= math.MaxInt64 || t < math.MinInt64 {
		return 0, false
	}
	return int64(t), true
}
