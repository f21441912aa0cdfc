package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2Distance_IdenticalVectorsAreZero(t *testing.T) {
	v := []float64{1, 2, 3}
	assert.InDelta(t, 0, l2Distance(v, v), 1e-9)
}

func TestL2Distance_KnownValue(t *testing.T) {
	a := []float64{0, 0}
	b := []float64{3, 4}
	assert.InDelta(t, 5, l2Distance(a, b), 1e-9)
}

func TestL2Distance_MismatchedLengthsUseShorterPrefix(t *testing.T) {
	a := []float64{0, 0, 0}
	b := []float64{3, 4}
	assert.InDelta(t, 5, l2Distance(a, b), 1e-9)
}
