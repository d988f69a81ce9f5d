package crawler

// buffer is a fixed-capacity accumulator of unconsumed device bytes.
// Bytes at data[n:] are scratch space for the next fetch.
type buffer struct {
	data []byte
	n    int
}

func newBuffer(size int) buffer { return buffer{data: make([]byte, size)} }

func (b *buffer) bytes() []byte { return b.data[:b.n] }

// tail returns the free space after the valid bytes.
func (b *buffer) tail() []byte { return b.data[b.n:] }

func (b *buffer) commit(n int) { b.n += n }

// discard drops the first off bytes and moves the rest to the front.
func (b *buffer) discard(off int) {
	if off <= 0 {
		return
	}
	copy(b.data, b.data[off:b.n])
	b.n -= off
}

func (b *buffer) len() int { return b.n }
