package bus

import "sync"

// bufferPool recycles fixed-size datagram receive buffers.
// Buffers go back to the pool once the datagram has been handled; the
// parser copies what it keeps, so nothing retains a pooled buffer.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// get returns a buffer of exactly p.size bytes.
func (p *bufferPool) get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// put returns a buffer obtained from get. Buffers of any other
// capacity are dropped.
func (p *bufferPool) put(buf *[]byte) {
	if buf == nil || cap(*buf) != p.size {
		return
	}
	*buf = (*buf)[:p.size]
	p.pool.Put(buf)
}
