package pipeline

// BufferFlag marks properties of a delivered buffer.
type BufferFlag uint32

const (
	// FlagFrameEnd marks the last buffer of an encoded frame.
	FlagFrameEnd BufferFlag = 1 << iota
	// FlagTransmissionFailed marks a frame the co-processor could not finish.
	FlagTransmissionFailed
	// FlagEOS marks end of stream.
	FlagEOS
	// FlagKeyframe marks a buffer starting a decodable unit.
	FlagKeyframe
)

// Has reports whether all bits of f are set.
func (b BufferFlag) Has(f BufferFlag) bool {
	return b&f == f
}

// Buffer is a fixed-capacity transfer buffer owned by a Pool.
//
// Ownership moves pool -> port -> callback -> pool. A buffer is never held
// by two owners at once; Release returns it to its pool.
type Buffer struct {
	Data   []byte
	Length int
	Flags  BufferFlag

	pool *Pool
}

// Payload returns the valid bytes of the buffer.
func (b *Buffer) Payload() []byte {
	if b.Length <= 0 {
		return nil
	}
	return b.Data[:b.Length]
}

// Fill copies p into the buffer and returns the number of bytes copied.
func (b *Buffer) Fill(p []byte) int {
	n := copy(b.Data[:cap(b.Data)], p)
	b.Length = n
	return n
}

// Release returns the buffer to its pool. Buffers without a pool (tests,
// backend-internal event buffers) are ignored.
func (b *Buffer) Release() {
	if b.pool != nil {
		b.pool.Reclaim(b)
	}
}

func (b *Buffer) reset() {
	b.Length = 0
	b.Flags = 0
}
