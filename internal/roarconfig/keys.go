package roarconfig

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/roar-ml/roar/internal/rerr"
)

// Get resolves a dotted key like "glaas.url" or "hash.algorithms" against
// the struct's `toml` tags, for `roar config get KEY` (spec §6).
func Get(cfg Config, key string) (string, error) {
	v, err := lookup(reflect.ValueOf(cfg), strings.Split(key, "."))
	if err != nil {
		return "", err
	}
	return formatValue(v), nil
}

// Set resolves a dotted key and assigns value (parsed per the field's
// kind), for `roar config set KEY VALUE`.
func Set(cfg *Config, key, value string) error {
	v, err := lookup(reflect.ValueOf(cfg).Elem(), strings.Split(key, "."))
	if err != nil {
		return err
	}
	return assignValue(v, value)
}

// List renders every leaf key=value pair, for `roar config list`.
func List(cfg Config) map[string]string {
	out := map[string]string{}
	collectLeaves(reflect.ValueOf(cfg), "", out)
	return out
}

func lookup(v reflect.Value, path []string) (reflect.Value, error) {
	if len(path) == 0 {
		return v, nil
	}
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() == reflect.Map {
		key := path[0]
		elem := v.MapIndex(reflect.ValueOf(key))
		if !elem.IsValid() {
			return reflect.Value{}, rerr.New(rerr.KindPreflight, "unknown config key: "+key)
		}
		return lookup(elem, path[1:])
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, rerr.New(rerr.KindPreflight, "config key does not resolve to a leaf")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := tomlName(t.Field(i))
		if tag == path[0] {
			return lookup(v.Field(i), path[1:])
		}
	}
	return reflect.Value{}, rerr.New(rerr.KindPreflight, "unknown config key: "+strings.Join(path, "."))
}

func tomlName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if tag == "" {
		return f.Name
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		return tag[:idx]
	}
	return tag
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Slice:
		parts := make([]string, v.Len())
		for i := 0; i < v.Len(); i++ {
			parts[i] = fmt.Sprint(v.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v.Interface())
	}
}

func assignValue(v reflect.Value, value string) error {
	if !v.CanSet() {
		return rerr.New(rerr.KindPreflight, "config key is not settable")
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return rerr.Wrap(rerr.KindPreflight, "invalid bool value", err)
		}
		v.SetBool(b)
	case reflect.Slice:
		parts := strings.Split(value, ",")
		out := reflect.MakeSlice(v.Type(), len(parts), len(parts))
		for i, p := range parts {
			out.Index(i).SetString(strings.TrimSpace(p))
		}
		v.Set(out)
	default:
		return rerr.New(rerr.KindPreflight, "unsupported config value kind")
	}
	return nil
}

func collectLeaves(v reflect.Value, prefix string, out map[string]string) {
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			name := tomlName(t.Field(i))
			key := name
			if prefix != "" {
				key = prefix + "." + name
			}
			collectLeaves(v.Field(i), key, out)
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			key := fmt.Sprint(k.Interface())
			if prefix != "" {
				key = prefix + "." + key
			}
			collectLeaves(v.MapIndex(k), key, out)
		}
	default:
		out[prefix] = formatValue(v)
	}
}
