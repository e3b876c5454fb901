package prestods

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pkg/errors"
)

// numericAt returns the value at i as float64. The bool is false for null
// cells and non-numeric fields.
func numericAt(f *data.Field, i int) (float64, bool) {
	v, ok := f.ConcreteAt(i)
	if !ok {
		return 0, false
	}
	return toFloat64(v)
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func isString(ft data.FieldType) bool {
	return ft == data.FieldTypeString || ft == data.FieldTypeNullableString
}

// convertTimeColumn replaces the field at idx with a nullable time field.
// Numeric epochs in seconds, milliseconds or nanoseconds and RFC3339 strings
// are understood.
func convertTimeColumn(frame *data.Frame, idx int) error {
	if idx < 0 || idx >= len(frame.Fields) {
		return fmt.Errorf("time index %d is out of range", idx)
	}
	origin := frame.Fields[idx]
	ft := origin.Type()
	if ft == data.FieldTypeTime || ft == data.FieldTypeNullableTime {
		return nil
	}

	var at func(i int) *time.Time
	switch {
	case ft.Numeric():
		at = func(i int) *time.Time {
			v, ok := numericAt(origin, i)
			if !ok {
				return nil
			}
			t := time.UnixMilli(int64(epochPrecisionToMS(v))).UTC()
			return &t
		}
	case isString(ft):
		at = func(i int) *time.Time {
			v, ok := origin.ConcreteAt(i)
			if !ok {
				return nil
			}
			t, err := time.Parse(time.RFC3339, v.(string))
			if err != nil {
				return nil
			}
			return &t
		}
	default:
		return fmt.Errorf("column type %q is not convertible to time.Time", ft)
	}

	converted := data.NewFieldFromFieldType(data.FieldTypeNullableTime, origin.Len())
	converted.Name = origin.Name
	converted.Labels = origin.Labels
	converted.Config = origin.Config
	for i := 0; i < origin.Len(); i++ {
		converted.Set(i, at(i))
	}
	frame.Fields[idx] = converted
	return nil
}

// convertValueColumn replaces the numeric field at idx with a nullable
// float64 field. Non-numeric fields fail and are zeroed.
func convertValueColumn(frame *data.Frame, idx int) error {
	if idx < 0 || idx >= len(frame.Fields) {
		return fmt.Errorf("value index %d is out of range", idx)
	}
	origin := frame.Fields[idx]
	ft := origin.Type()
	if ft == data.FieldTypeFloat64 || ft == data.FieldTypeNullableFloat64 {
		return nil
	}

	converted := data.NewFieldFromFieldType(data.FieldTypeNullableFloat64, origin.Len())
	converted.Name = origin.Name
	converted.Labels = origin.Labels
	converted.Config = origin.Config
	frame.Fields[idx] = converted

	if !ft.Numeric() {
		zero := float64(0)
		for i := 0; i < origin.Len(); i++ {
			converted.Set(i, &zero)
		}
		return errors.Errorf("column %q of type %s can't be converted to float", origin.Name, ft)
	}
	for i := 0; i < origin.Len(); i++ {
		if v, ok := numericAt(origin, i); ok {
			converted.Set(i, &v)
		}
	}
	return nil
}

// epochPrecisionToMS scales epoch seconds or nanoseconds to milliseconds.
// Values already in milliseconds pass through.
func epochPrecisionToMS(value float64) float64 {
	s := strconv.FormatFloat(value, 'e', -1, 64)
	if strings.HasSuffix(s, "e+09") {
		return value * 1e3
	}
	if strings.HasSuffix(s, "e+18") {
		return value / float64(time.Millisecond)
	}
	return value
}
