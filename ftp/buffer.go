package ftp

// transferBufSize is the preferred transfer buffer size, one TCP segment.
const transferBufSize = 1460

// minTransferBufSize is the smallest buffer a transfer can run with.
const minTransferBufSize = 64

// Allocator hands out transfer buffers. Sizing is opportunistic: Get may
// return a buffer smaller than preferred, or nil when nothing can be served,
// in which case the transfer must not start. Put returns a buffer obtained
// from Get; the engine calls it exactly once per transfer.
type Allocator interface {
	Get(preferred int) []byte
	Put(buf []byte)
}

// StepAllocator allocates from the heap, halving the requested size down to
// Min when an attempt is rejected by Cap. Cap exists for constrained
// deployments (and tests) that want to bound the engine's transfer memory;
// a zero Cap accepts the preferred size outright.
type StepAllocator struct {
	Min int // smallest size to fall back to; minTransferBufSize when zero
	Cap int // largest size Get will serve; unlimited when zero
}

func (a *StepAllocator) Get(preferred int) []byte {
	min := a.Min
	if min <= 0 {
		min = minTransferBufSize
	}
	if preferred < min {
		preferred = min
	}
	size := preferred
	for size >= min {
		if a.Cap <= 0 || size <= a.Cap {
			return make([]byte, size)
		}
		size /= 2
	}
	if a.Cap >= min {
		return make([]byte, a.Cap)
	}
	return nil
}

func (a *StepAllocator) Put(buf []byte) {}
