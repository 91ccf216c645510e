package logstream

import (
	"reflect"

	"github.com/bytedance/sonic"
)

// Entry is one row of sandbox output.
//
// Keys the runner sends that have no field here are kept in Extra so they
// still take part in duplicate detection and survive re-encoding.
type Entry struct {
	Msg       string `json:"msg"`
	Type      string `json:"type,omitempty"`
	Section   string `json:"section,omitempty"`
	URL       string `json:"url,omitempty"`
	LineNo    int    `json:"lineNo,omitempty"`
	ColNo     int    `json:"colNo,omitempty"`
	ShowStack bool   `json:"showStack,omitempty"`

	// Count is 0 for an entry seen once and the number of occurrences
	// once duplicates have been merged into it.
	Count int `json:"count,omitempty"`

	Extra map[string]interface{} `json:"-"`

	// present records optional keys that were decoded even when their
	// value is the zero value
	present keySet
}

type keySet uint8

const (
	keyType keySet = 1 << iota
	keySection
	keyURL
	keyLineNo
	keyColNo
	keyShowStack
)

var optionalKeys = []struct {
	name string
	bit  keySet
}{
	{"type", keyType},
	{"section", keySection},
	{"url", keyURL},
	{"lineNo", keyLineNo},
	{"colNo", keyColNo},
	{"showStack", keyShowStack},
}

var knownKeys = []string{"msg", "type", "section", "url", "lineNo", "colNo", "showStack", "count"}

// keys returns the optional keys the entry carries: decoded ones plus any
// with a non-zero value
func (e *Entry) keys() keySet {
	k := e.present
	if e.Type != "" {
		k |= keyType
	}
	if e.Section != "" {
		k |= keySection
	}
	if e.URL != "" {
		k |= keyURL
	}
	if e.LineNo != 0 {
		k |= keyLineNo
	}
	if e.ColNo != 0 {
		k |= keyColNo
	}
	if e.ShowStack {
		k |= keyShowStack
	}
	return k
}

// zeroValue is what an optional key encodes to when its field is empty
func zeroValue(bit keySet) interface{} {
	switch bit {
	case keyLineNo, keyColNo:
		return 0
	case keyShowStack:
		return false
	default:
		return ""
	}
}

type plainEntry Entry

// UnmarshalJSON decodes known keys into fields and the rest into Extra
func (e *Entry) UnmarshalJSON(data []byte) error {
	var p plainEntry
	if err := sonic.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]interface{}
	if err := sonic.Unmarshal(data, &all); err != nil {
		return err
	}
	var present keySet
	for _, k := range optionalKeys {
		if _, ok := all[k.name]; ok {
			present |= k.bit
		}
	}
	for _, k := range knownKeys {
		delete(all, k)
	}

	*e = Entry(p)
	e.present = present
	e.Extra = nil
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// MarshalJSON encodes fields and Extra as a single flat object
func (e Entry) MarshalJSON() ([]byte, error) {
	raw, err := sonic.Marshal(plainEntry(e))
	if err != nil || (len(e.Extra) == 0 && e.present == 0) {
		return raw, err
	}

	var flat map[string]interface{}
	if err := sonic.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	for _, k := range optionalKeys {
		if _, ok := flat[k.name]; !ok && e.present&k.bit != 0 {
			flat[k.name] = zeroValue(k.bit)
		}
	}
	for k, v := range e.Extra {
		if _, known := flat[k]; !known {
			flat[k] = v
		}
	}
	return sonic.Marshal(flat)
}

// Occurrences returns how many times the entry was seen
func (e Entry) Occurrences() int {
	if e.Count == 0 {
		return 1
	}
	return e.Count
}

// Same reports whether next duplicates prev. Count is ignored. Both must
// carry the same keys, so an explicit lineNo of 0 differs from no lineNo.
// Extra values compare strictly: JSON scalars by value, objects and arrays
// never match.
func Same(prev, next *Entry) bool {
	if (prev == nil) != (next == nil) {
		return false
	}
	if prev == nil {
		return true
	}

	if prev.keys() != next.keys() {
		return false
	}
	if prev.Msg != next.Msg ||
		prev.Type != next.Type ||
		prev.Section != next.Section ||
		prev.URL != next.URL ||
		prev.LineNo != next.LineNo ||
		prev.ColNo != next.ColNo ||
		prev.ShowStack != next.ShowStack {
		return false
	}

	if len(prev.Extra) != len(next.Extra) {
		return false
	}
	for k, pv := range prev.Extra {
		nv, ok := next.Extra[k]
		if !ok || !strictEqual(pv, nv) {
			return false
		}
	}
	return true
}

func strictEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func (e Entry) clone() Entry {
	c := e
	if e.Extra != nil {
		c.Extra = make(map[string]interface{}, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = v
		}
	}
	return c
}
