// Package tag defines stream tags: metadata attached to an absolute item
// offset of a stream.
package tag

import (
	"fmt"

	"pipelined.dev/flow/pmt"
)

type (
	// Map holds tag entries.
	Map map[string]pmt.Value

	// Tag is a set of key/value entries attached to an absolute item
	// offset of a stream.
	Tag struct {
		Offset uint64
		Map    Map
	}
)

// New returns a tag at offset with provided entries.
func New(offset uint64, m Map) Tag {
	return Tag{Offset: offset, Map: m.Clone()}
}

// Clone returns a copy of the map.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	c := make(Map, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Get returns value for key.
func (t Tag) Get(key string) (pmt.Value, bool) {
	v, ok := t.Map[key]
	return v, ok
}

// Clone returns a deep enough copy of the tag: entries map is copied,
// values are immutable.
func (t Tag) Clone() Tag {
	return Tag{Offset: t.Offset, Map: t.Map.Clone()}
}

// Equal reports if two tags have the same offset and entries.
func (t Tag) Equal(o Tag) bool {
	if t.Offset != o.Offset || len(t.Map) != len(o.Map) {
		return false
	}
	for k, v := range t.Map {
		ov, ok := o.Map[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (t Tag) String() string {
	return fmt.Sprintf("tag@%d%v", t.Offset, pmt.Map(t.Map))
}

// Policy defines how tags are propagated from block inputs to outputs.
type Policy uint8

const (
	// DontPropagate drops all input tags.
	DontPropagate Policy = iota
	// AllToAll copies every input tag to every output.
	AllToAll
	// OneToOne copies tags of input i only to output i.
	OneToOne
)

func (p Policy) String() string {
	switch p {
	case DontPropagate:
		return "dont"
	case AllToAll:
		return "all_to_all"
	case OneToOne:
		return "one_to_one"
	}
	return fmt.Sprintf("policy(%d)", p)
}

// ParsePolicy parses policy from its string form.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "dont":
		return DontPropagate, nil
	case "all_to_all":
		return AllToAll, nil
	case "one_to_one":
		return OneToOne, nil
	}
	return 0, fmt.Errorf("unknown tag propagation policy %q", s)
}
