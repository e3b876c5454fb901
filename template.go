package prestods

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/regexp"
)

// ScopedVar is a single template variable value. Value is a string, a
// []string for multi-value variables, or any scalar.
type ScopedVar struct {
	Text  string `json:"text"`
	Value any    `json:"value"`
}

// ScopedVars maps variable names to their current values.
type ScopedVars map[string]ScopedVar

// TemplateService resolves template variables in a pattern.
type TemplateService interface {
	Replace(pattern string, vars ScopedVars) string
}

// Variable formats understood by ${name:format} and [[name:format]].
const (
	VarFormatGlob        = "glob"
	VarFormatRaw         = "raw"
	VarFormatCSV         = "csv"
	VarFormatPipe        = "pipe"
	VarFormatSingleQuote = "singlequote"
	VarFormatDoubleQuote = "doublequote"
	VarFormatSQLString   = "sqlstring"
	VarFormatJSON        = "json"
	VarFormatRegex       = "regex"
)

// variableRegex matches $name, [[name]], [[name:format]], ${name},
// ${name.path} and ${name:format}.
var variableRegex = regexp.MustCompile(`\$(\w+)|\[\[(\w+?)(?::(\w+))?\]\]|\$\{(\w+)(?:\.([^:^\}]+))?(?::([^\}]+))?\}`)

// VariableTemplater is an in-process TemplateService implementing the host's
// variable syntax. Unknown variables are left untouched.
type VariableTemplater struct {
	// Globals are consulted when a variable is not in the scoped set.
	Globals ScopedVars
}

// NewVariableTemplater returns a templater with the given global variables.
func NewVariableTemplater(globals ScopedVars) *VariableTemplater {
	return &VariableTemplater{Globals: globals}
}

// Replace implements TemplateService.
func (t *VariableTemplater) Replace(pattern string, vars ScopedVars) string {
	if pattern == "" || !strings.ContainsAny(pattern, "$[") {
		return pattern
	}
	return variableRegex.ReplaceAllStringFunc(pattern, func(match string) string {
		m := variableRegex.FindStringSubmatch(match)
		name, path, format := m[1], "", ""
		switch {
		case m[2] != "":
			name, format = m[2], m[3]
		case m[4] != "":
			name, path, format = m[4], m[5], m[6]
		}

		v, ok := vars[name]
		if !ok {
			v, ok = t.Globals[name]
		}
		if !ok {
			return match
		}
		if path == "text" {
			return v.Text
		}
		return formatVariable(v.Value, format)
	})
}

func formatVariable(value any, format string) string {
	values, multi := variableValues(value)

	switch format {
	case VarFormatRaw, VarFormatCSV:
		return strings.Join(values, ",")
	case VarFormatPipe:
		return strings.Join(values, "|")
	case VarFormatSingleQuote:
		return quoteEach(values, `'`, `\'`)
	case VarFormatDoubleQuote:
		return quoteEach(values, `"`, `\"`)
	case VarFormatSQLString:
		return quoteEach(values, `'`, `''`)
	case VarFormatJSON:
		var b []byte
		if multi {
			b, _ = json.Marshal(values)
		} else {
			b, _ = json.Marshal(values[0])
		}
		return string(b)
	case VarFormatRegex:
		escaped := make([]string, len(values))
		for i, v := range values {
			escaped[i] = regexp.QuoteMeta(v)
		}
		if len(escaped) == 1 {
			return escaped[0]
		}
		return "(" + strings.Join(escaped, "|") + ")"
	default:
		if len(values) == 1 {
			return values[0]
		}
		return "{" + strings.Join(values, ",") + "}"
	}
}

// variableValues flattens a variable value into strings. The bool reports
// whether the value was a multi-value list.
func variableValues(value any) ([]string, bool) {
	switch v := value.(type) {
	case nil:
		return []string{""}, false
	case string:
		return []string{v}, false
	case []string:
		if len(v) == 0 {
			return []string{""}, true
		}
		return v, true
	case []any:
		if len(v) == 0 {
			return []string{""}, true
		}
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = fmt.Sprint(item)
		}
		return out, true
	default:
		return []string{fmt.Sprint(v)}, false
	}
}

func quoteEach(values []string, quote, escaped string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = quote + strings.ReplaceAll(v, quote, escaped) + quote
	}
	return strings.Join(out, ",")
}

// BuiltinScopedVars derives the host's built-in time variables from a query.
func BuiltinScopedVars(dq backend.DataQuery) ScopedVars {
	vars := ScopedVars{}
	if !dq.TimeRange.From.IsZero() {
		from := strconv.FormatInt(dq.TimeRange.From.UnixMilli(), 10)
		vars["__from"] = ScopedVar{Text: from, Value: from}
	}
	if !dq.TimeRange.To.IsZero() {
		to := strconv.FormatInt(dq.TimeRange.To.UnixMilli(), 10)
		vars["__to"] = ScopedVar{Text: to, Value: to}
	}
	if dq.Interval > 0 {
		interval := formatInterval(dq.Interval)
		ms := strconv.FormatInt(dq.Interval.Milliseconds(), 10)
		vars["__interval"] = ScopedVar{Text: interval, Value: interval}
		vars["__interval_ms"] = ScopedVar{Text: ms, Value: ms}
	}
	return vars
}

// formatInterval renders an interval the way the host does: the largest
// whole unit, falling back to milliseconds.
func formatInterval(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}
