package tag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"pipelined.dev/flow/pmt"
)

// Header layout constants.
const (
	HeaderMagic   uint16 = 0x5FF0
	HeaderVersion uint8  = 0x02
	HeaderSize           = 19
)

var (
	// ErrTooShort is returned when encoded header is shorter than HeaderSize.
	ErrTooShort = errors.New("tag header: buffer too short")
	// ErrFormat is returned when header or tag records are malformed.
	ErrFormat = errors.New("tag header: bad format")
)

// Header is the fixed prefix that precedes tags sent over a transport.
type Header struct {
	Offset uint64
	NTags  uint64
}

// EncodeHeader serializes offset and tags. Header fields are little endian,
// followed by one record per tag: offset, number of entries and then
// key/value pairs with keys in sorted order.
func EncodeHeader(offset uint64, tags []Tag) []byte {
	b := make([]byte, HeaderSize, HeaderSize+64*len(tags))
	binary.LittleEndian.PutUint16(b[0:], HeaderMagic)
	b[2] = HeaderVersion
	binary.LittleEndian.PutUint64(b[3:], offset)
	binary.LittleEndian.PutUint64(b[11:], uint64(len(tags)))
	for _, t := range tags {
		b = binary.LittleEndian.AppendUint64(b, t.Offset)
		b = binary.LittleEndian.AppendUint64(b, uint64(len(t.Map)))
		for _, k := range sortedKeys(t.Map) {
			b = binary.LittleEndian.AppendUint64(b, uint64(len(k)))
			b = append(b, k...)
			b = pmt.AppendMarshal(b, t.Map[k])
		}
	}
	return b
}

// DecodeHeader parses header and tag records from b. It returns the header,
// decoded tags and the number of bytes consumed, so the payload that
// follows starts at b[n:].
func DecodeHeader(b []byte) (Header, []Tag, int, error) {
	if len(b) < HeaderSize {
		return Header{}, nil, 0, fmt.Errorf("%w: %d bytes, need %d", ErrTooShort, len(b), HeaderSize)
	}
	if magic := binary.LittleEndian.Uint16(b[0:]); magic != HeaderMagic {
		return Header{}, nil, 0, fmt.Errorf("%w: magic %#04x", ErrFormat, magic)
	}
	if v := b[2]; v != HeaderVersion {
		return Header{}, nil, 0, fmt.Errorf("%w: version %#02x", ErrFormat, v)
	}
	h := Header{
		Offset: binary.LittleEndian.Uint64(b[3:]),
		NTags:  binary.LittleEndian.Uint64(b[11:]),
	}
	pos := HeaderSize
	// each record takes at least 16 bytes
	if h.NTags > uint64(len(b)-pos)/16 {
		return Header{}, nil, 0, fmt.Errorf("%w: %d tags do not fit in %d bytes", ErrFormat, h.NTags, len(b)-pos)
	}
	tags := make([]Tag, 0, h.NTags)
	for i := uint64(0); i < h.NTags; i++ {
		t, n, err := decodeTag(b[pos:])
		if err != nil {
			return Header{}, nil, 0, fmt.Errorf("tag %d: %w", i, err)
		}
		tags = append(tags, t)
		pos += n
	}
	return h, tags, pos, nil
}

func decodeTag(b []byte) (Tag, int, error) {
	if len(b) < 16 {
		return Tag{}, 0, fmt.Errorf("%w: truncated record", ErrFormat)
	}
	t := Tag{Offset: binary.LittleEndian.Uint64(b)}
	n := binary.LittleEndian.Uint64(b[8:])
	pos := 16
	if n > uint64(len(b)-pos)/9 {
		return Tag{}, 0, fmt.Errorf("%w: %d entries do not fit", ErrFormat, n)
	}
	t.Map = make(Map, n)
	for i := uint64(0); i < n; i++ {
		if len(b)-pos < 8 {
			return Tag{}, 0, fmt.Errorf("%w: truncated key", ErrFormat)
		}
		kl := binary.LittleEndian.Uint64(b[pos:])
		pos += 8
		if kl > uint64(len(b)-pos) {
			return Tag{}, 0, fmt.Errorf("%w: truncated key", ErrFormat)
		}
		key := string(b[pos : pos+int(kl)])
		pos += int(kl)
		v, vn, err := pmt.Unmarshal(b[pos:])
		if err != nil {
			return Tag{}, 0, fmt.Errorf("%w: key %q: %v", ErrFormat, key, err)
		}
		pos += vn
		t.Map[key] = v
	}
	return t, pos, nil
}

func sortedKeys(m Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
