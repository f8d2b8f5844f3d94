package refengine

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

const (
	pageSize  = 65536
	alignment = 8
)

type block struct {
	ptr, size uint32
}

// heap is a first-fit allocator over a wasm linear memory. Freed blocks are
// reused before the bump pointer advances; the memory grows when neither
// fits. Offset zero is never handed out.
type heap struct {
	mem  api.Memory
	log  *zap.Logger
	top  uint32
	live map[uint32]uint32
	free []block
}

func newHeap(mem api.Memory, log *zap.Logger) *heap {
	return &heap{
		mem:  mem,
		log:  log,
		top:  alignment,
		live: make(map[uint32]uint32),
	}
}

func alignUp(n uint32) uint32 {
	if n == 0 {
		return alignment
	}
	return (n + alignment - 1) &^ (alignment - 1)
}

func (h *heap) alloc(size uint32) (uint32, error) {
	size = alignUp(size)
	for i, b := range h.free {
		if b.size >= size {
			h.free = append(h.free[:i], h.free[i+1:]...)
			h.live[b.ptr] = b.size
			return b.ptr, nil
		}
	}

	end := uint64(h.top) + uint64(size)
	if end > uint64(h.mem.Size()) {
		pages := (end - uint64(h.mem.Size()) + pageSize - 1) / pageSize
		if _, ok := h.mem.Grow(uint32(pages)); !ok {
			return 0, errors.Newf("refengine: out of memory allocating %d bytes", size)
		}
		h.log.Debug("memory grown", zap.Uint64("pages", pages), zap.Uint32("size", h.mem.Size()))
	}
	ptr := h.top
	h.top = uint32(end)
	h.live[ptr] = size
	return ptr, nil
}

func (h *heap) release(ptr uint32) error {
	size, ok := h.live[ptr]
	if !ok {
		return errors.Newf("refengine: free of unallocated pointer %d", ptr)
	}
	delete(h.live, ptr)
	h.free = append(h.free, block{ptr: ptr, size: size})
	// Smallest blocks first so first-fit wastes as little as possible.
	sort.Slice(h.free, func(i, j int) bool { return h.free[i].size < h.free[j].size })
	return nil
}

func (h *heap) inUse() (n int, bytes uint64) {
	for _, size := range h.live {
		bytes += uint64(size)
	}
	return len(h.live), bytes
}
