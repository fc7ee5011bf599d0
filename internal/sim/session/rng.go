package session

import "math/rand"

// countingSource counts draws from a seeded source. A snapshot stores the
// count; restoring replays that many draws. It does not implement
// rand.Source64, so every draw goes through Int63.
type countingSource struct {
	src   rand.Source
	draws uint64
}

func newCountingSource(seed int64, skip uint64) *countingSource {
	c := &countingSource{src: rand.NewSource(seed)}
	for c.draws < skip {
		c.Int63()
	}
	return c
}

func (c *countingSource) Int63() int64 {
	c.draws++
	return c.src.Int63()
}

func (c *countingSource) Seed(seed int64) {
	c.src.Seed(seed)
	c.draws = 0
}

// aiSeed derives the runtime stream, independent of build-time draws.
func aiSeed(seed int64) int64 { return seed ^ 0x5eed_a1 }
