// Package plan builds the randomized trial order for a run.
package plan

import (
	"fmt"
	"math/rand"

	"github.com/evokelab/entrain/internal/model"
)

// Order is an ordered sequence of class indices, immutable once built and
// consumed index-by-index by the sequencer.
type Order []int

// Blocks returns trialsPerClass independently shuffled permutations of the
// class set, concatenated in shuffle order. Every contiguous block of
// len(classes) trials contains each class exactly once, but block contents
// are independently randomized, so the run as a whole is not i.i.d. random.
// Pure aside from the injected random source.
func Blocks(classes []model.ClassSpec, trialsPerClass int, rng *rand.Rand) (Order, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: at least one class is required", model.ErrInvalidConfiguration)
	}
	if trialsPerClass < 1 {
		return nil, fmt.Errorf("%w: trials per class must be at least 1, got %d", model.ErrInvalidConfiguration, trialsPerClass)
	}

	block := make([]int, len(classes))
	for i := range block {
		block[i] = i
	}

	order := make(Order, 0, trialsPerClass*len(classes))
	for b := 0; b < trialsPerClass; b++ {
		rng.Shuffle(len(block), func(i, j int) {
			block[i], block[j] = block[j], block[i]
		})
		order = append(order, block...)
	}
	return order, nil
}
