package sim

import (
	"hash/fnv"
	"io"
	"math/rand"

	"github.com/google/uuid"
)

// DeterministicSeed derives a stable seed for one labelled random stream from
// a root seed string, so independent subsystems never share a sequence.
func DeterministicSeed(root, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(root))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewRNG returns an explicitly seeded source. The simulation never reads
// time-of-day entropy.
func NewRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NewID draws a version 4 UUID from r. With a seeded reader the sequence of
// ids is reproducible.
func NewID(r io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func randomRange(rng *rand.Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rng.Float64()*(max-min)
}
