package difficulty

import (
	"math"
	"testing"

	"consensussim/util/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// chain builds a history from block intervals, genesis at time 0.
func chain(difficulty uint64, intervals ...int64) History {
	points := []Point{{Height: 0, Time: 0, Difficulty: difficulty}}
	for i, interval := range intervals {
		last := points[len(points)-1]
		points = append(points, Point{Height: i + 1, Time: last.Time + interval, Difficulty: difficulty})
	}
	return func(n int) []Point {
		if n > len(points) {
			n = len(points)
		}
		return points[len(points)-n:]
	}
}

func TestIncrementalDirection(t *testing.T) {
	s := &Incremental{Target: 60000, Gain: 0.1, MaxChange: 0.05, Min: 1000}
	for _, observed := range []int64{1, 100, 30000, 59999} {
		assert.Greater(t, s.Next(chain(50000, observed)), uint64(50000), "observed %v", observed)
	}
	for _, observed := range []int64{60001, 90000, 600000, 1 << 40} {
		assert.Less(t, s.Next(chain(50000, observed)), uint64(50000), "observed %v", observed)
	}
	assert.Equal(t, uint64(50000), s.Next(chain(50000, 60000)))
}

func TestIncrementalBounds(t *testing.T) {
	s := &Incremental{Target: 60000, Gain: 1, MaxChange: 0.05, Min: 1000}
	up := s.Next(chain(50000, 1))
	assert.Equal(t, uint64(math.Round(50000*math.Exp(s.MaxIncrease()))), up)
	assert.Less(t, up, uint64(52564))
	assert.Equal(t, uint64(47561), s.Next(chain(50000, 600000)))

	// small difficulties still move
	small := &Incremental{Target: 60000, Gain: 1, MaxChange: 0.05, Min: 1}
	assert.Equal(t, uint64(11), small.Next(chain(10, 59000)))
	assert.Equal(t, uint64(9), small.Next(chain(10, 61000)))

	// never below the floor
	assert.Equal(t, uint64(1000), s.Next(chain(1000, 600000)))
	assert.Equal(t, uint64(1000), s.Next(chain(1010, 600000)))
}

func TestIncrementalIncreaseIsBalanced(t *testing.T) {
	for _, c := range []struct{ gain, maxChange float64 }{{0.1, 0.05}, {1, 0.05}, {0.02, 0.05}, {0.5, 0.2}} {
		s := &Incremental{Target: 1000, Gain: c.gain, MaxChange: c.maxChange}
		up := s.MaxIncrease()
		assert.Greater(t, up, 0.0)
		assert.Less(t, up, c.maxChange)
		assert.InDelta(t, 0, meanStep(c.gain, up, c.maxChange), 1e-9, "gain %v", c.gain)
	}
}

// On average the intervals stay on target when block times are exponential.
func TestIncrementalSettlesOnTarget(t *testing.T) {
	s := &Incremental{Target: 60000, Gain: 0.1, MaxChange: 0.05, Min: 1}
	src := rand.NewSource(1)
	points := []Point{{Height: 0, Time: 0, Difficulty: 60000}}
	history := func(n int) []Point {
		if n > len(points) {
			n = len(points)
		}
		return points[len(points)-n:]
	}

	const blocks = 20000
	sum := 0.0
	for i := 1; i <= blocks; i++ {
		parent := points[len(points)-1]
		d := s.Next(history)
		// one difficulty unit per ms of network hash rate
		interval := int64(math.Ceil(distuv.Exponential{Rate: 1 / float64(d), Src: src}.Rand()))
		points = append(points, Point{Height: i, Time: parent.Time + interval, Difficulty: d})
		if i > blocks/2 {
			sum += float64(interval)
		}
	}
	assert.InDelta(t, 60000, sum/(blocks/2), 4000)
}

func TestIncrementalGenesis(t *testing.T) {
	s := &Incremental{Target: 60000, Gain: 0.1, MaxChange: 0.05, Min: 1}
	assert.Equal(t, uint64(777), s.Next(chain(777)))
}

func TestHomestead(t *testing.T) {
	s := &Homestead{Target: 14000, Min: 131072}
	parent := uint64(2048 * 1000)

	// faster than the bucket raises by parent/2048
	assert.Equal(t, parent+1000, s.Next(chain(parent, 5000)))
	// inside the second bucket keeps it
	assert.Equal(t, parent, s.Next(chain(parent, 15000)))
	// slow blocks lower it
	assert.Equal(t, parent-2*1000, s.Next(chain(parent, 35000)))
	// the factor is capped at -99
	assert.Equal(t, parent-99*1000, s.Next(chain(parent, 10_000_000)))
	// the floor holds
	assert.Equal(t, uint64(131072), s.Next(chain(131072, 10_000_000)))
}

func TestPeriod(t *testing.T) {
	s := &Period{Window: 4, Target: 1000, MaxFactor: 4, Min: 1}

	// only every window blocks
	assert.Equal(t, uint64(100), s.Next(chain(100, 500, 500, 500)))
	assert.Equal(t, uint64(200), s.Next(chain(100, 500, 500, 500, 500)))
	assert.Equal(t, uint64(50), s.Next(chain(100, 2000, 2000, 2000, 2000)))

	// the correction is clamped
	assert.Equal(t, uint64(400), s.Next(chain(100, 1, 1, 1, 1)))
	assert.Equal(t, uint64(25), s.Next(chain(100, 100000, 100000, 100000, 100000)))
}

func TestNew(t *testing.T) {
	config := file.ProofOfWorkConfig{InitialDifficulty: 100, TargetBlockInterval: 600}
	for name, expected := range map[string]string{"": STRATEGY_NONE, "none": STRATEGY_NONE, "incremental": STRATEGY_INCREMENTAL, "homestead": STRATEGY_HOMESTEAD, "period": STRATEGY_PERIOD} {
		config.Adjustment.Strategy = name
		s, err := New(config)
		require.NoError(t, err)
		assert.Equal(t, expected, s.Name())
	}
	config.Adjustment.Strategy = "magic"
	_, err := New(config)
	assert.Error(t, err)
}
