// Package chsql builds server-side bound parameters for ClickHouse
// statements. Values never enter statement text: every value is bound and
// referenced by a {name:Type} placeholder.
package chsql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Binder collects bound parameters for one statement.
type Binder struct {
	params map[string]string
	next   int
}

// NewBinder creates an empty binder.
func NewBinder() *Binder {
	return &Binder{params: map[string]string{}}
}

// Named binds value under a fixed name and returns its placeholder.
// Binding the same name again overwrites the value.
func (b *Binder) Named(name, chType string, value any) string {
	b.params[name] = format(value)
	return "{" + name + ":" + chType + "}"
}

// Bind binds value under a generated name and returns its placeholder.
func (b *Binder) Bind(chType string, value any) string {
	name := "p" + strconv.Itoa(b.next)
	b.next++
	return b.Named(name, chType, value)
}

// String binds a String value.
func (b *Binder) String(value string) string {
	return b.Bind("String", value)
}

// Strings binds an Array(String) value.
func (b *Binder) Strings(values []string) string {
	return b.Bind("Array(String)", values)
}

// Time binds t as epoch milliseconds and returns a DateTime64 expression.
func (b *Binder) Time(name string, t time.Time) string {
	return "fromUnixTimestamp64Milli(" + b.Named(name, "Int64", t.UnixMilli()) + ")"
}

// Params returns the bound values by name.
func (b *Binder) Params() map[string]string {
	out := make(map[string]string, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

// Names returns the bound parameter names in order.
func (b *Binder) Names() []string {
	names := make([]string, 0, len(b.params))
	for k := range b.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Ident quotes an identifier with backticks.
func Ident(name string) string {
	return "`" + strings.ReplaceAll(strings.ReplaceAll(name, `\`, `\\`), "`", "\\`") + "`"
}

func format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		quoted := make([]string, len(v))
		for i, s := range v {
			quoted[i] = quote(s)
		}
		return "[" + strings.Join(quoted, ",") + "]"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return strconv.FormatInt(v.UnixMilli(), 10)
	default:
		return fmt.Sprint(v)
	}
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
