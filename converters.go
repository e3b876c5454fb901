package prestods

import (
	"database/sql"
	"reflect"
	"regexp"
	"strconv"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/grafana/grafana-plugin-sdk-go/data/sqlutil"
)

// Layouts the driver renders temporal values with.
var (
	dateLayouts = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	}
	timeLayouts = []string{
		"15:04:05.000000000",
		"15:04:05.000000",
		"15:04:05.000",
		"15:04:05",
	}
	timestampLayouts = []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000 MST",
		"2006-01-02 15:04:05.000 -07:00",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	}
)

var nullStringType = reflect.TypeOf(sql.NullString{})

// Converters maps Presto column types, which the driver scans as strings,
// onto typed nullable frame fields.
func Converters() []sqlutil.Converter {
	return []sqlutil.Converter{
		stringConverter("boolean", nil, data.FieldTypeNullableBool, func(s string) (any, error) {
			b, err := strconv.ParseBool(s)
			return &b, err
		}),
		intConverter("tinyint", 8, data.FieldTypeNullableInt8, func(v int64) any { n := int8(v); return &n }),
		intConverter("smallint", 16, data.FieldTypeNullableInt16, func(v int64) any { n := int16(v); return &n }),
		intConverter("integer", 32, data.FieldTypeNullableInt32, func(v int64) any { n := int32(v); return &n }),
		intConverter("bigint", 64, data.FieldTypeNullableInt64, func(v int64) any { return &v }),
		stringConverter("real", nil, data.FieldTypeNullableFloat32, func(s string) (any, error) {
			f, err := strconv.ParseFloat(s, 32)
			v := float32(f)
			return &v, err
		}),
		stringConverter("double", nil, data.FieldTypeNullableFloat64, parseFloat64),
		stringConverter("", regexp.MustCompile(`^decimal`), data.FieldTypeNullableFloat64, parseFloat64),
		stringConverter("date", nil, data.FieldTypeNullableTime, timeParser(dateLayouts)),
		stringConverter("", regexp.MustCompile(`^time( with time zone)?$`), data.FieldTypeNullableTime, timeParser(timeLayouts)),
		stringConverter("", regexp.MustCompile(`^timestamp( with time zone)?$`), data.FieldTypeNullableTime, timeParser(timestampLayouts)),
	}
}

// stringConverter builds a converter for a column scanned as sql.NullString.
// When typeRegex is set it replaces typeName.
func stringConverter(typeName string, typeRegex *regexp.Regexp, ft data.FieldType, parse func(string) (any, error)) sqlutil.Converter {
	name := typeName
	if typeRegex != nil {
		// sqlutil also matches on InputTypeName, so an empty name would claim
		// every column without a database type.
		name = typeRegex.String()
	}
	return sqlutil.Converter{
		Name:           "handle " + name,
		InputTypeName:  name,
		InputTypeRegex: typeRegex,
		InputScanType:  nullStringType,
		FrameConverter: sqlutil.FrameConverter{
			FieldType: ft,
			ConverterFunc: func(in any) (any, error) {
				ns := in.(*sql.NullString)
				if !ns.Valid {
					return nil, nil
				}
				v, err := parse(ns.String)
				if err != nil {
					return nil, err
				}
				return v, nil
			},
		},
	}
}

func intConverter(typeName string, bits int, ft data.FieldType, wrap func(int64) any) sqlutil.Converter {
	return stringConverter(typeName, nil, ft, func(s string) (any, error) {
		v, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return nil, err
		}
		return wrap(v), nil
	})
}

func parseFloat64(s string) (any, error) {
	v, err := strconv.ParseFloat(s, 64)
	return &v, err
}

func timeParser(layouts []string) func(string) (any, error) {
	return func(s string) (any, error) {
		var err error
		for _, layout := range layouts {
			var t time.Time
			if t, err = time.Parse(layout, s); err == nil {
				return &t, nil
			}
		}
		return nil, err
	}
}
