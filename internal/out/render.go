// Package out writes command results as a JSON envelope or as plain text.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ggonzalez94/defi-intents/internal/model"
)

const (
	ModeJSON  = "json"
	ModePlain = "plain"
)

type Options struct {
	Mode        string
	Select      []string
	ResultsOnly bool
}

// ErrorOptions is what error envelopes render with: full envelope, no
// projection, in the same mode as the failed command.
func (o Options) ErrorOptions() Options {
	mode := o.Mode
	if mode == "" {
		mode = ModeJSON
	}
	return Options{Mode: mode}
}

func Render(w io.Writer, env model.Envelope, opts Options) error {
	data := env.Data
	if len(opts.Select) > 0 {
		data = project(data, opts.Select)
	}

	if opts.Mode != ModePlain {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if opts.ResultsOnly {
			return enc.Encode(data)
		}
		env.Data = data
		return enc.Encode(env)
	}

	if env.Error != nil {
		line := fmt.Sprintf("error[%s]: %s", env.Error.Type, env.Error.Message)
		if env.Error.Field != "" {
			line += fmt.Sprintf(" (field %s)", env.Error.Field)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if err := renderPlain(w, data); err != nil {
		return err
	}
	if opts.ResultsOnly {
		return nil
	}
	for _, warning := range env.Warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warning); err != nil {
			return err
		}
	}
	return nil
}

func renderPlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "(none)")
			return err
		}
		for i := 0; i < v.Len(); i++ {
			line, err := toLine(normalizeValue(v.Index(i).Interface()))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	default:
		n := normalizeValue(data)
		// Conversation replies carry a human message; print it as written
		// and the scalar fields after it.
		if m, ok := n.(map[string]any); ok {
			if msg, ok := m["message"].(string); ok {
				if _, err := fmt.Fprintln(w, msg); err != nil {
					return err
				}
				rest := map[string]any{}
				for k, val := range m {
					switch val.(type) {
					case map[string]any, []any:
						continue
					}
					if k != "message" {
						rest[k] = val
					}
				}
				if len(rest) == 0 {
					return nil
				}
				n = rest
			}
		}
		line, err := toLine(n)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
}

func project(data any, fields []string) any {
	n := normalizeValue(data)
	switch t := n.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, projectMap(m, fields))
			}
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return n
	}
}

// projectMap keeps the named fields. A dotted name reaches into nested
// objects, so preview.fields.leverage selects one preview field.
func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, f); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		if s, ok := v.(string); ok {
			return s, nil
		}
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		val := m[k]
		switch val.(type) {
		case map[string]any, []any:
			buf, err := json.Marshal(val)
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("%s=%s", k, buf))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, val))
		}
	}
	return strings.Join(parts, " "), nil
}
