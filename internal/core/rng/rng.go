// Package rng centralizes the randomness of a simulation run. Every component
// receives its own named stream derived from the run seed, so the draws of one
// component never shift the draws of another.
package rng

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

type Context struct {
	seed int64
}

func New(seed int64) *Context {
	return &Context{seed: seed}
}

func (c *Context) Seed() int64 {
	return c.seed
}

// Source returns a fresh deterministic source for name. Two calls with the same
// name return sources that produce identical sequences.
func (c *Context) Source(name string) rand.Source {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(c.seed))

	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(name)
	stream := d.Sum64()

	return rand.NewPCG(uint64(c.seed), stream)
}

func (c *Context) Stream(name string) *rand.Rand {
	return rand.New(c.Source(name))
}

// ArraySplit divides items into n contiguous chunks whose sizes differ by at
// most one; the first len(items)%n chunks receive the extra element. Chunks may
// be empty when n exceeds len(items).
func ArraySplit[T any](items []T, n int) [][]T {
	if n <= 0 {
		return nil
	}
	chunks := make([][]T, n)
	base, extra := len(items)/n, len(items)%n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		chunk := make([]T, size)
		copy(chunk, items[start:start+size])
		chunks[i] = chunk
		start += size
	}
	return chunks
}
