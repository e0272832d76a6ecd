package node

import (
	"maps"
	"slices"
	"strings"
)

const (
	tagSymbol         = "@"
	tagValueSeparator = ":"
	valueSeparator    = ","
)

// Meta maps a key to an ordered list of values, typically parsed from tags.
type Meta map[string][]string

func (m Meta) Clone() Meta {
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Get returns the values for key.
func (m Meta) Get(key string) []string {
	return m[key]
}

// Has reports whether key is present, with or without values.
func (m Meta) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Keys returns the keys in sorted order.
func (m Meta) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// ParseTagMeta converts tags of the form "@key" or "@key:v1,v2" into meta values.
// "@owner:qa,dev" becomes owner -> [qa dev]; "@smoke" becomes smoke -> [].
func ParseTagMeta(tags []string) Meta {
	meta := make(Meta, len(tags))
	for _, tag := range tags {
		tag = strings.ReplaceAll(strings.TrimSpace(tag), tagSymbol, "")
		if tag == "" {
			continue
		}
		key, values, found := strings.Cut(tag, tagValueSeparator)
		if key == "" {
			continue
		}
		if !found || values == "" {
			meta[key] = []string{}
			continue
		}
		parsed := []string{}
		for _, v := range strings.Split(values, valueSeparator) {
			if v = strings.TrimSpace(v); v != "" {
				parsed = append(parsed, v)
			}
		}
		meta[key] = parsed
	}
	return meta
}
