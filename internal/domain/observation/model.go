package observation

import "sort"

// Collection maps concept UUIDs to observed values. Values are strings,
// float64s, []any of answer UUIDs or media URLs, PhoneNumber, or a nested
// Collection under a question-group concept.
type Collection map[string]any

// PhoneNumber is the stored shape of a PhoneNumber observation.
type PhoneNumber struct {
	PhoneNumber string `json:"phoneNumber"`
	Verified    bool   `json:"verified"`
}

// Request is one (concept, value) pair produced while reading a row. A
// question-group request carries []Request as its Value.
type Request struct {
	ConceptName string `json:"conceptName"`
	ConceptUUID string `json:"conceptUUID"`
	Value       any    `json:"value"`
}

// Get returns the value stored for conceptUUID.
func (c Collection) Get(conceptUUID string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c[conceptUUID]
	return v, ok
}

// Nested returns the child collection of a question-group observation. For
// a repeatable group it returns the first entry.
func (c Collection) Nested(conceptUUID string) Collection {
	v, ok := c.Get(conceptUUID)
	if !ok {
		return nil
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		v = list[0]
	}
	switch n := v.(type) {
	case Collection:
		return n
	case map[string]any:
		return Collection(n)
	}
	return nil
}

// ConceptUUIDs returns the keys in sorted order.
func (c Collection) ConceptUUIDs() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValueList normalises a stored value to a list. Scalars become a one
// element list; nil becomes an empty one.
func ValueList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{t}
	}
}
