// Package buffer implements a single writer, multiple reader ring buffer of
// fixed size items with a timeline of stream tags.
package buffer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"pipelined.dev/flow/tag"
)

var (
	// ErrOverflow is returned when writer commits more items than free space.
	ErrOverflow = errors.New("buffer: write exceeds free space")
	// ErrUnderflow is returned when reader commits more items than available.
	ErrUnderflow = errors.New("buffer: read exceeds available items")
)

// Buffer is a ring store of capacity items. The backing storage is twice
// the capacity and every committed item is mirrored, so any window of at
// most capacity items starting anywhere in the ring is contiguous.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	itemSize int
	written  uint64
	readers  []*Reader
	tags     []tag.Tag
	done     bool
}

// Reader is an independent read cursor over the buffer.
type Reader struct {
	buf  *Buffer
	read uint64
}

// New allocates a buffer for capacity items of itemSize bytes.
func New(capacity, itemSize int) *Buffer {
	if capacity < 1 || itemSize < 1 {
		panic(fmt.Sprintf("buffer: invalid capacity %d or item size %d", capacity, itemSize))
	}
	return &Buffer{
		data:     make([]byte, 2*capacity*itemSize),
		capacity: capacity,
		itemSize: itemSize,
	}
}

// Capacity returns size of buffer in items.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// ItemSize returns size of single item in bytes.
func (b *Buffer) ItemSize() int {
	return b.itemSize
}

// AddReader attaches a new reader. The reader starts at the current write
// position and does not see items written before it was attached.
func (b *Buffer) AddReader() *Reader {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &Reader{buf: b, read: b.written}
	b.readers = append(b.readers, r)
	return r
}

// RemoveReader detaches the reader, it no longer holds back the writer.
func (b *Buffer) RemoveReader(r *Reader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.readers {
		if b.readers[i] == r {
			b.readers = append(b.readers[:i], b.readers[i+1:]...)
			break
		}
	}
	b.pruneTags()
}

// Readers returns number of attached readers.
func (b *Buffer) Readers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.readers)
}

// TotalWritten returns number of items committed since creation.
func (b *Buffer) TotalWritten() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}

// SpaceAvailable returns number of items the writer can commit without
// overwriting items any reader has not consumed yet.
func (b *Buffer) SpaceAvailable() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.space()
}

func (b *Buffer) space() int {
	return b.capacity - int(b.written-b.minRead())
}

func (b *Buffer) minRead() uint64 {
	lowest := b.written
	for _, r := range b.readers {
		if r.read < lowest {
			lowest = r.read
		}
	}
	return lowest
}

// WritePtr returns the writable window and its size in items. The window
// is valid until PostWrite is called.
func (b *Buffer) WritePtr() ([]byte, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.space()
	start := int(b.written%uint64(b.capacity)) * b.itemSize
	return b.data[start : start+n*b.itemSize], n
}

// PostWrite commits n items placed into the window returned by WritePtr.
func (b *Buffer) PostWrite(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 || n > b.space() {
		return fmt.Errorf("%w: commit %d, free %d", ErrOverflow, n, b.space())
	}
	b.mirror(int(b.written%uint64(b.capacity)), n)
	b.written += uint64(n)
	return nil
}

// mirror copies n items at position pos into the other half of storage.
func (b *Buffer) mirror(pos, n int) {
	is := b.itemSize
	for n > 0 {
		var src, dst, cnt int
		if pos < b.capacity {
			cnt = min(n, b.capacity-pos)
			src, dst = pos, pos+b.capacity
		} else {
			cnt = min(n, 2*b.capacity-pos)
			src, dst = pos, pos-b.capacity
		}
		copy(b.data[dst*is:(dst+cnt)*is], b.data[src*is:(src+cnt)*is])
		n -= cnt
		pos = (pos + cnt) % (2 * b.capacity)
	}
}

// AddTag attaches entries to absolute offset. Tags are kept ordered by
// offset; tags with equal offsets keep insertion order.
func (b *Buffer) AddTag(offset uint64, m tag.Map) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insertTag(tag.New(offset, m))
}

// AddTags attaches tags to the timeline.
func (b *Buffer) AddTags(tags ...tag.Tag) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tags {
		b.insertTag(t.Clone())
	}
}

func (b *Buffer) insertTag(t tag.Tag) {
	i := sort.Search(len(b.tags), func(i int) bool {
		return b.tags[i].Offset > t.Offset
	})
	b.tags = append(b.tags, tag.Tag{})
	copy(b.tags[i+1:], b.tags[i:])
	b.tags[i] = t
}

// Tags returns number of tags that are still retained.
func (b *Buffer) Tags() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tags)
}

// pruneTags drops tags every reader has already passed.
func (b *Buffer) pruneTags() {
	read := b.minRead()
	i := sort.Search(len(b.tags), func(i int) bool {
		return b.tags[i].Offset >= read
	})
	if i > 0 {
		b.tags = append(b.tags[:0], b.tags[i:]...)
	}
}

// SetDone marks the end of stream. No more items will be written.
func (b *Buffer) SetDone() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
}

// Done reports if the writer has finished.
func (b *Buffer) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Buffer returns the buffer the reader is attached to.
func (r *Reader) Buffer() *Buffer {
	return r.buf
}

// ItemsAvailable returns number of committed items not read yet.
func (r *Reader) ItemsAvailable() int {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	return int(r.buf.written - r.read)
}

// ItemsRead returns number of items consumed by the reader.
func (r *Reader) ItemsRead() uint64 {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	return r.read
}

// ReadPtr returns the unread window starting idx items after the read
// cursor. The window is valid until PostRead is called.
func (r *Reader) ReadPtr(idx int) []byte {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	avail := int(b.written - r.read)
	if idx > avail {
		idx = avail
	}
	start := int(r.read % uint64(b.capacity))
	return b.data[(start+idx)*b.itemSize : (start+avail)*b.itemSize]
}

// PostRead advances the read cursor by n items.
func (r *Reader) PostRead(n int) error {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	if avail := int(b.written - r.read); n < 0 || n > avail {
		return fmt.Errorf("%w: consume %d, available %d", ErrUnderflow, n, avail)
	}
	r.read += uint64(n)
	b.pruneTags()
	return nil
}

// TagsInWindow returns tags with offsets in
// [read+startRel, read+startRel+n) in offset order.
func (r *Reader) TagsInWindow(startRel, n int) []tag.Tag {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	from := r.read + uint64(startRel)
	to := from + uint64(n)
	i := sort.Search(len(b.tags), func(i int) bool {
		return b.tags[i].Offset >= from
	})
	var result []tag.Tag
	for ; i < len(b.tags) && b.tags[i].Offset < to; i++ {
		result = append(result, b.tags[i].Clone())
	}
	return result
}

// WriterDone reports if the writer has finished.
func (r *Reader) WriterDone() bool {
	return r.buf.Done()
}

// Finished reports if the writer has finished and every item was read.
func (r *Reader) Finished() bool {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done && b.written == r.read
}
