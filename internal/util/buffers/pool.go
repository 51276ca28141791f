// Package buffers provides reusable chunk-sized byte buffers for hashing and
// chunked uploads, so a multi-file batch does not allocate a fresh 1 MiB
// slice per chunk.
package buffers

import (
	"sync"
	"sync/atomic"

	"github.com/viforest/viforest/internal/constants"
)

// Pool monitoring counters
var (
	chunkAllocations int64 // new buffers created by the pool
	chunkGets        int64 // total GetChunkBuffer calls
)

// chunkPool provides UploadChunkSize buffers
var chunkPool = &sync.Pool{
	New: func() interface{} {
		atomic.AddInt64(&chunkAllocations, 1)
		buf := make([]byte, constants.UploadChunkSize)
		return &buf
	},
}

// GetChunkBuffer retrieves a chunk-sized buffer from the pool.
// The buffer must be returned with PutChunkBuffer when done.
//
// Usage:
//
//	buf := buffers.GetChunkBuffer()
//	defer buffers.PutChunkBuffer(buf)
//	n, err := io.ReadFull(file, *buf)
//	// Use (*buf)[:n] for actual data
func GetChunkBuffer() *[]byte {
	atomic.AddInt64(&chunkGets, 1)
	return chunkPool.Get().(*[]byte)
}

// PutChunkBuffer returns a buffer to the pool for reuse.
// Only buffers of the correct size are pooled.
func PutChunkBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.UploadChunkSize {
		clear(*buf)
		chunkPool.Put(buf)
	}
}

// Stats holds buffer pool statistics.
type Stats struct {
	ChunkBufferSize  int   // Size of chunk buffers (bytes)
	ChunkAllocations int64 // Buffers created by the pool
	ChunkGets        int64 // Buffers handed out
}

// GetStats returns current buffer pool statistics.
func GetStats() Stats {
	return Stats{
		ChunkBufferSize:  constants.UploadChunkSize,
		ChunkAllocations: atomic.LoadInt64(&chunkAllocations),
		ChunkGets:        atomic.LoadInt64(&chunkGets),
	}
}
