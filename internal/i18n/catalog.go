// Package i18n holds the process-wide translation table.
package i18n

import (
	"fmt"
	"io"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// Catalog maps message keys to strings. It is populated once and is
// read-only afterward, so it is safe for concurrent use.
type Catalog struct {
	entries map[string]string
}

// New creates a catalog from a flat key/value map.
func New(entries map[string]string) *Catalog {
	c := &Catalog{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		c.entries[k] = v
	}
	return c
}

// Load parses a TOML document. Nested tables become dotted keys:
//
//	[command]
//	error = "failed"    # key "command.error"
func Load(r io.Reader) (*Catalog, error) {
	var raw map[string]any
	if err := toml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}
	c := &Catalog{entries: make(map[string]string)}
	flatten("", raw, c.entries)
	return c, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Translate returns the message for key, or a placeholder naming the key.
func (c *Catalog) Translate(key string) string {
	if c != nil {
		if v, ok := c.entries[key]; ok {
			return v
		}
	}
	return Missing(key)
}

// Translatef formats the message for key with args. A missing key gives
// the same placeholder as Translate, with args dropped.
func (c *Catalog) Translatef(key string, args ...any) string {
	if c == nil {
		return Missing(key)
	}
	v, ok := c.entries[key]
	if !ok {
		return Missing(key)
	}
	return fmt.Sprintf(v, args...)
}

// Has reports whether key is present.
func (c *Catalog) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.entries[key]
	return ok
}

// Keys returns all keys in sorted order.
func (c *Catalog) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Missing is the placeholder returned for unknown keys.
func Missing(key string) string {
	return "No translation for key " + key
}
