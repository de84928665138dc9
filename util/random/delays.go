package random

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const maxBlockDelay = int64(30 * 24 * 3600 * 1000) // a month of ticks

// TimeBetweenBlocks samples the delay until a miner with the given rate
// (expected blocks per tick) finds its next block. Mining is memoryless so
// the delay may be resampled at any point.
func (r *RNG) TimeBetweenBlocks(rate float64) int64 {
	r.blockCount++
	if rate <= 0 {
		return maxBlockDelay
	}
	dist := distuv.Exponential{Rate: rate, Src: r.blockTimes}
	delay := int64(math.Ceil(dist.Rand()))
	if delay < 1 {
		delay = 1
	}
	if delay > maxBlockDelay {
		delay = maxBlockDelay
	}
	return delay
}

// SlotUniform returns a value in [0, 1) that every node knowing seed and slot
// computes identically without talking to anyone.
func SlotUniform(seed uint64, slot int64) float64 {
	src := rand.NewSource(seed ^ (uint64(slot)+1)*0x9E3779B97F4A7C15)
	return rand.New(src).Float64()
}

// DelaySampler draws link latencies in ticks.
type DelaySampler struct {
	fixed int64
	dist  IRNG
	min   int64
}

// NewDelaySampler accepts "fixed" with one param or any GetDist distribution.
func NewDelaySampler(distName string, params []float64, source rand.Source) (*DelaySampler, error) {
	if distName == "fixed" || distName == "" {
		fixed := int64(0)
		if len(params) > 0 {
			fixed = int64(math.Round(params[0]))
		}
		return &DelaySampler{fixed: fixed}, nil
	}
	dist, err := GetDist(distName, params, source)
	if err != nil {
		return nil, err
	}
	return &DelaySampler{dist: dist, min: 1}, nil
}

func NewFixedDelay(ticks int64) *DelaySampler {
	return &DelaySampler{fixed: ticks}
}

func (s *DelaySampler) Sample() int64 {
	if s.dist == nil {
		return s.fixed
	}
	delay := int64(math.Round(s.dist.Rand()))
	if delay < s.min {
		delay = s.min
	}
	return delay
}
