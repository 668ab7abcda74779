package push

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte // complete envelope
}

// ReplayBuffer keeps the most recent envelopes of one symbol so a
// reconnecting client can catch up from its last seen sequence number.
// Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push stores data under seq, overwriting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: cp}
	rb.pos = (rb.pos + 1) % len(rb.buf)
	if rb.pos == 0 {
		rb.full = true
	}
	rb.mu.Unlock()
}

// Since returns the envelopes with Seq > afterSeq, oldest first. ok is
// false when entries after afterSeq were already evicted, i.e. the buffer
// cannot close the gap.
func (rb *ReplayBuffer) Since(afterSeq int64) (out [][]byte, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := rb.len()
	if n == 0 {
		return nil, true
	}
	oldest := rb.buf[rb.index(0)].Seq
	for i := 0; i < n; i++ {
		if e := rb.buf[rb.index(i)]; e.Seq > afterSeq {
			out = append(out, e.Data)
		}
	}
	return out, afterSeq >= oldest-1
}

// Len returns the number of stored envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// index maps a logical position (0 = oldest) to the slice index.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % len(rb.buf)
	}
	return logical
}
