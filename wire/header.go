package wire

import "strings"

// Headers is an ordered list of header fields with case-insensitive name
// access. Field order is preserved on the wire; names that are valid
// tokens are stored in canonical form.
type Headers struct {
	fields []Field
}

func NewHeaders(fields []Field) Headers {
	h := Headers{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

func (h *Headers) Len() int { return len(h.fields) }

// Fields returns a copy of the fields in order.
func (h *Headers) Fields() []Field {
	clone := make([]Field, len(h.fields))
	copy(clone, h.fields)
	return clone
}

// Get returns the first value of key.
func (h *Headers) Get(key string) (value string, ok bool) {
	for _, f := range h.fields {
		if nameEqual(f.Name, key) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value of key, in order.
func (h *Headers) Values(key string) (values []string) {
	for _, f := range h.fields {
		if nameEqual(f.Name, key) {
			values = append(values, f.Value)
		}
	}
	return values
}

func (h *Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Set replaces every occurrence of key with a single field, keeping the
// position of the first occurrence.
func (h *Headers) Set(key, value string) {
	key = CanonicalName(key)

	replaced := false
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !nameEqual(f.Name, key) {
			kept = append(kept, f)
			continue
		}
		if !replaced {
			kept = append(kept, Field{Name: key, Value: value})
			replaced = true
		}
	}
	h.fields = kept

	if !replaced {
		h.fields = append(h.fields, Field{Name: key, Value: value})
	}
}

// Add appends a field, preserving any existing fields of the same name.
func (h *Headers) Add(key, value string) {
	h.fields = append(h.fields, Field{Name: CanonicalName(key), Value: value})
}

// Prepend inserts a field at the front of the list.
func (h *Headers) Prepend(key, value string) {
	h.fields = append([]Field{{Name: CanonicalName(key), Value: value}}, h.fields...)
}

func (h *Headers) Del(key string) {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !nameEqual(f.Name, key) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

func (h *Headers) Clone() Headers {
	return Headers{fields: h.Fields()}
}

// HasToken reports whether any value of key contains token as an element
// of its comma-separated list, compared case-insensitively. This is how
// "Connection: close" and "Transfer-Encoding: chunked" are matched.
func (h *Headers) HasToken(key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimFunc(part, isOWS), token) {
				return true
			}
		}
	}
	return false
}

func isOWS(r rune) bool { return r == rune(SP) || r == rune(HTAB) }

func nameEqual(a, b string) bool { return strings.EqualFold(a, b) }
