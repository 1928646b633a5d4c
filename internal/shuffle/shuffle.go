// Package shuffle implements the deterministic randomization used for
// question composition: seed derivation from submission/part identity, seeded
// shuffling, and distinct pool draws. Every function is pure — the same
// inputs always produce the same order, which is what makes a submission's
// question list reproducible across reads, resumed sessions and re-grades.
package shuffle

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
)

// Seed derives the randomization seed for a part delivered under a
// submission. Each submission gets an independent ordering, and each part
// within a submission gets its own, because both ids feed the hash.
func Seed(submissionID, partID uint) int64 {
	return hashSeed(fmt.Sprintf("%d_%d", submissionID, partID))
}

// AuthoringSeed derives the seed used when no submission context exists
// (authoring preview): part identity alone.
func AuthoringSeed(partID uint) int64 {
	return hashSeed(fmt.Sprintf("%d", partID))
}

func hashSeed(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// Shuffle permutes ids in place with a PRNG keyed by seed. Two-element lists
// are padded to three before shuffling and the pad removed after; with only
// two elements a seeded swap leaves half of all seeds producing the authored
// order, and the pad spreads the permutations out.
func Shuffle(seed int64, ids []uint) {
	if len(ids) == 2 {
		padded := []uint{ids[0], ids[1], 0}
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(padded), func(i, j int) {
			padded[i], padded[j] = padded[j], padded[i]
		})
		n := 0
		for _, id := range padded {
			if id != 0 {
				ids[n] = id
				n++
			}
		}
		return
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}

// Draw returns count distinct ids from pool, a pure function of the pool's
// id set, count, seed and the excluded set. The pool ids are sorted before
// shuffling so the result does not depend on input order. Ids in exclude are
// skipped (the pool is over-drawn to cover them). Returns an error when the
// pool cannot satisfy the request; callers surface that as an invalid part,
// never as a truncated draw.
func Draw(seed int64, pool []uint, count int, exclude map[uint]bool) ([]uint, error) {
	available := len(pool) - len(intersect(pool, exclude))
	if count > available {
		return nil, fmt.Errorf("draw of %d exceeds pool size %d", count, available)
	}

	ids := make([]uint, len(pool))
	copy(ids, pool)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	Shuffle(seed, ids)

	rv := make([]uint, 0, count)
	for _, id := range ids {
		if exclude[id] {
			continue
		}
		rv = append(rv, id)
		if len(rv) == count {
			break
		}
	}
	return rv, nil
}

func intersect(ids []uint, set map[uint]bool) []uint {
	var rv []uint
	for _, id := range ids {
		if set[id] {
			rv = append(rv, id)
		}
	}
	return rv
}
