package random

import (
	"fmt"
	"hash/fnv"

	"github.com/rotisserie/eris"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

type IRNG interface {
	Rand() float64
}

var ErrUnknownDistribution = eris.New("unknown distribution")

// RNG is the random source of one simulation instance. Every consumer draws
// from its own derived stream so adding draws in one place does not shift
// the numbers seen elsewhere.
type RNG struct {
	seed         uint64
	normal       *distuv.Normal
	uniform      *distuv.Uniform
	blockTimes   rand.Source
	picker       *rand.Rand
	normalCount  int
	uniformCount int
	blockCount   int
	pickCount    int
}

func New(seed uint64) *RNG {
	return &RNG{
		seed:       seed,
		normal:     &distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(derive(seed, "normal"))},
		uniform:    &distuv.Uniform{Min: 0, Max: 1, Src: rand.NewSource(derive(seed, "uniform"))},
		blockTimes: rand.NewSource(derive(seed, "blockTimes")),
		picker:     rand.New(rand.NewSource(derive(seed, "picker"))),
	}
}

func derive(seed uint64, stream string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(stream))
	return seed ^ h.Sum64()
}

func (r *RNG) Seed() uint64 {
	return r.seed
}

func (r *RNG) Normal() float64 {
	r.normalCount++
	return r.normal.Rand()
}

func (r *RNG) Uniform() float64 {
	r.uniformCount++
	return r.uniform.Rand()
}

// Intn returns a value in [0, n).
func (r *RNG) Intn(n int) int {
	r.pickCount++
	return r.picker.Intn(n)
}

func (r *RNG) Perm(n int) []int {
	r.pickCount++
	return r.picker.Perm(n)
}

// Source returns a fresh source for a named consumer, e.g. one link's latency model.
func (r *RNG) Source(stream string) rand.Source {
	return rand.NewSource(derive(r.seed, stream))
}

// Counts indicates determinism: two runs with the same seed must report the same numbers.
func (r *RNG) Counts() string {
	return fmt.Sprintf("normal: %v, uniform: %v, blockTimes: %v, picks: %v", r.normalCount, r.uniformCount, r.blockCount, r.pickCount)
}

func GetDist(distName string, params []float64, source rand.Source) (IRNG, error) {
	need := 2
	switch distName {
	case "chisquare", "exp":
		need = 1
	}
	if len(params) < need {
		return nil, eris.Errorf("distribution %v needs %v params, got %v", distName, need, len(params))
	}
	switch distName {
	case "beta":
		return &distuv.Beta{Alpha: params[0], Beta: params[1], Src: source}, nil
	case "invgamma":
		return &distuv.InverseGamma{Alpha: params[0], Beta: params[1], Src: source}, nil
	case "norm":
		return &distuv.Normal{Mu: params[0], Sigma: params[1], Src: source}, nil
	case "gamma":
		return &distuv.Gamma{Alpha: params[0], Beta: params[1], Src: source}, nil
	case "lognorm":
		return &distuv.LogNormal{Mu: params[0], Sigma: params[1], Src: source}, nil
	case "chisquare":
		return &distuv.ChiSquared{K: params[0], Src: source}, nil
	case "exp":
		return &distuv.Exponential{Rate: params[0], Src: source}, nil
	case "F":
		return &distuv.F{D1: params[0], D2: params[1], Src: source}, nil
	case "laplace":
		return &distuv.Laplace{Mu: params[0], Scale: params[1], Src: source}, nil
	case "pareto":
		return &distuv.Pareto{Xm: params[0], Alpha: params[1], Src: source}, nil
	case "uniform":
		return &distuv.Uniform{Min: params[0], Max: params[1], Src: source}, nil
	case "weibull":
		return &distuv.Weibull{K: params[0], Lambda: params[1], Src: source}, nil
	default:
		return nil, eris.Wrapf(ErrUnknownDistribution, "distribution %v", distName)
	}
}
