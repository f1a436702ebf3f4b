package chunk

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"

	"ddupbak/internal/compress"

	"golang.org/x/sync/errgroup"
)

// ChunkFile splits the file at path into fixed-size chunks under the
// index's chunking policy, stores each chunk (deduplicating by
// content hash), and returns the ordered list of chunk IDs. Refcounts
// for every returned ID are incremented once, after all chunks have
// been added, exactly as the Rust original batches its increments to
// avoid per-chunk lock contention on the id map.
func (idx *Index) ChunkFile(ctx context.Context, path string, compression compress.Format, workers int) ([]uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size := info.Size()

	chunkSize, chunkCount, threshold := idx.chunkingPolicy(size)

	var chunkIDs []uint64
	var hashes [][32]byte

	if workers > 1 && chunkCount > threshold {
		chunkIDs, hashes, err = idx.chunkFileParallel(ctx, path, compression, chunkSize, chunkCount, size, workers)
	} else {
		chunkIDs, hashes, err = idx.chunkFileSerial(ctx, path, compression, chunkSize)
	}
	if err != nil {
		return nil, err
	}

	for i, id := range chunkIDs {
		idx.chunks.update(id, idEntry{hash: hashes[i]}, func(cur idEntry) idEntry {
			cur.hash = hashes[i]
			cur.count++
			return cur
		})
	}

	return chunkIDs, nil
}

// chunkingPolicy computes the effective chunk size and count for a file
// of the given size, per spec.md's halve-count/double-size adjustment
// while over max_chunk_count, and returns the parallel-chunking
// threshold (max_chunk_count/2, or 50 when unbounded).
func (idx *Index) chunkingPolicy(size int64) (chunkSize, chunkCount, threshold int) {
	chunkSize = idx.chunkSize
	if chunkSize <= 0 {
		chunkSize = 1
	}
	chunkCount = int((size + int64(chunkSize) - 1) / int64(chunkSize))
	if chunkCount == 0 {
		chunkCount = 1
	}
	threshold = 50

	if idx.maxChunkCount > 0 {
		for chunkCount > idx.maxChunkCount {
			chunkCount = (chunkCount + 1) / 2
			chunkSize *= 2
		}
		threshold = idx.maxChunkCount / 2
	}

	return chunkSize, chunkCount, threshold
}

func (idx *Index) chunkFileSerial(ctx context.Context, path string, compression compress.Format, chunkSize int) ([]uint64, [][32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var ids []uint64
	var hashes [][32]byte
	buf := make([]byte, chunkSize)

	for {
		n, err := f.Read(buf)
		if n > 0 {
			hash := Blake2b256(buf[:n])
			id, addErr := idx.AddChunk(ctx, hash, buf[:n], compression)
			if addErr != nil {
				return nil, nil, addErr
			}
			ids = append(ids, id)
			hashes = append(hashes, hash)
		}
		if err != nil {
			break
		}
	}

	return ids, hashes, nil
}

type chunkRange struct {
	index      int
	start, end int64
}

type chunkResult struct {
	index int
	id    uint64
	hash  [32]byte
}

func (idx *Index) chunkFileParallel(ctx context.Context, path string, compression compress.Format, chunkSize, chunkCount int, fileSize int64, workers int) ([]uint64, [][32]byte, error) {
	ranges := make([]chunkRange, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := int64(i) * int64(chunkSize)
		if start >= fileSize {
			break
		}
		end := start + int64(chunkSize)
		if i == chunkCount-1 || end > fileSize {
			end = fileSize
		}
		ranges = append(ranges, chunkRange{index: i, start: start, end: end})
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(ranges) {
		workers = len(ranges)
	}
	if workers < 1 {
		workers = 1
	}

	work := make(chan chunkRange)
	results := make([]chunkResult, len(ranges))

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			for r := range work {
				buf := make([]byte, r.end-r.start)
				if _, err := f.ReadAt(buf, r.start); err != nil {
					return fmt.Errorf("chunk: reading range %d-%d: %w", r.start, r.end, err)
				}

				hash := Blake2b256(buf)
				id, err := idx.AddChunk(ctx, hash, buf, compression)
				if err != nil {
					return err
				}

				results[r.index] = chunkResult{index: r.index, id: id, hash: hash}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(work)
		for _, r := range ranges {
			select {
			case work <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	ids := make([]uint64, len(results))
	hashes := make([][32]byte, len(results))
	for i, r := range results {
		ids[i] = r.id
		hashes[i] = r.hash
	}

	return ids, hashes, nil
}
