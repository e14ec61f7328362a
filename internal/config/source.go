package config

import (
	"fmt"
	"sort"
	"strings"
)

// Source is one flat key/value configuration input.
type Source struct {
	// Name says where the values came from, for logs and errors.
	Name   string
	Values map[string]string
}

// NormalizeKey maps a key to its canonical, environment style form.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.NewReplacer(".", "_", "-", "_").Replace(key)
	return strings.ToUpper(key)
}

// FromMap builds a source from an arbitrary map.
func FromMap(name string, values map[string]string) Source {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[NormalizeKey(k)] = v
	}
	return Source{Name: name, Values: out}
}

// FromEnviron builds a source from KEY=VALUE pairs such as os.Environ().
// Entries without "=" are ignored.
func FromEnviron(environ []string) Source {
	values := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		values[k] = v
	}
	return FromMap("environment", values)
}

// ParseSet builds a source from command line "key=value" overrides.
func ParseSet(pairs []string) (Source, error) {
	values := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return Source{}, fmt.Errorf("invalid override %q, expected key=value", kv)
		}
		values[k] = v
	}
	return FromMap("overrides", values), nil
}

// Merge flattens sources into one map. Later sources override earlier ones.
func Merge(sources ...Source) map[string]string {
	out := make(map[string]string)
	for _, s := range sources {
		for k, v := range s.Values {
			out[NormalizeKey(k)] = v
		}
	}
	return out
}

// Keys returns the keys of m in sorted order.
func Keys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
