package dataset

import (
	"fmt"
	"math/rand/v2"
)

// Split partitions ds into a training and a test set. fraction is the share
// of samples assigned to the test set; the assignment depends only on seed.
// Both halves keep source order.
func Split(ds *Dataset, fraction float64, seed uint64) (train, test *Dataset, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("dataset: split fraction must be in (0,1), got %v", fraction)
	}
	n := ds.Len()
	nTest := int(float64(n) * fraction)
	if nTest == 0 || nTest == n {
		return nil, nil, fmt.Errorf("dataset: cannot split %d samples with fraction %v", n, fraction)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	inTest := make([]bool, n)
	for _, i := range rng.Perm(n)[:nTest] {
		inTest[i] = true
	}

	train = &Dataset{Dim: ds.Dim, Samples: make([]Sample, 0, n-nTest)}
	test = &Dataset{Dim: ds.Dim, Samples: make([]Sample, 0, nTest)}
	for i, s := range ds.Samples {
		if inTest[i] {
			test.Samples = append(test.Samples, s)
		} else {
			train.Samples = append(train.Samples, s)
		}
	}
	return train, test, nil
}
