package autoid

import (
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Allocator hands out ids that are unique within its lifetime.
type Allocator interface {
	AllocID() string
}

// UUIDAllocator allocates random UUIDs, unique across processes.
type UUIDAllocator struct{}

// NewUUIDAllocator creates a UUIDAllocator.
func NewUUIDAllocator() *UUIDAllocator {
	return new(UUIDAllocator)
}

// AllocID implements Allocator.
func (a *UUIDAllocator) AllocID() string {
	return uuid.New().String()
}

// SeqAllocator allocates "<prefix>-1", "<prefix>-2" and so on. The ids
// are only unique within the allocator, e.g. the connections of a node.
type SeqAllocator struct {
	prefix string
	seq    atomic.Int64
}

// NewSeqAllocator creates a SeqAllocator.
func NewSeqAllocator(prefix string) *SeqAllocator {
	return &SeqAllocator{prefix: prefix}
}

// AllocID implements Allocator.
func (a *SeqAllocator) AllocID() string {
	return a.prefix + "-" + strconv.FormatInt(a.seq.Inc(), 10)
}
