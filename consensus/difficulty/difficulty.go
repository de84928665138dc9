package difficulty

import (
	"math"

	"consensussim/interfaces"
	"consensussim/util/file"

	"github.com/rotisserie/eris"
)

// Point is what a strategy needs to know about one block of the chain.
type Point struct {
	Height     int
	Time       int64 // ms
	Difficulty uint64
}

// History returns up to n points of the chain ending at the parent of the
// block being built, oldest first.
type History func(n int) []Point

// Strategy computes the difficulty of the next block.
type Strategy interface {
	Next(history History) uint64
	Name() string
}

const (
	STRATEGY_NONE        = "none"
	STRATEGY_INCREMENTAL = "incremental"
	STRATEGY_HOMESTEAD   = "homestead"
	STRATEGY_PERIOD      = "period"
)

// New builds the strategy configured for a proof of work protocol.
func New(config file.ProofOfWorkConfig) (Strategy, error) {
	target := file.SecondsToTicks(config.TargetBlockInterval)
	floor := config.Adjustment.MinDifficulty
	if floor == 0 {
		floor = 1
	}
	switch config.Adjustment.Strategy {
	case STRATEGY_NONE, "":
		return None{}, nil
	case STRATEGY_INCREMENTAL:
		return &Incremental{Target: target, Gain: config.Adjustment.Gain, MaxChange: config.Adjustment.MaxChange, Min: floor}, nil
	case STRATEGY_HOMESTEAD:
		return &Homestead{Target: target, Min: floor}, nil
	case STRATEGY_PERIOD:
		return &Period{Window: config.Adjustment.WindowSize, Target: target, MaxFactor: config.Adjustment.MaxFactor, Min: floor}, nil
	}
	return nil, eris.Wrapf(interfaces.ErrConfig, "unknown adjustment strategy %q", config.Adjustment.Strategy)
}

// None keeps the difficulty of the parent.
type None struct{}

func (None) Name() string {
	return STRATEGY_NONE
}

func (None) Next(history History) uint64 {
	points := history(1)
	if len(points) == 0 {
		return 0
	}
	return points[0].Difficulty
}

// Incremental corrects the difficulty after every block in proportion to
// how far the last interval missed the target. The step is applied to the
// log of the difficulty. Intervals are exponential, so most of them are
// short: the increase is clamped tighter than the decrease such that on
// target the expected step is zero.
type Incremental struct {
	Target    int64 // ms
	Gain      float64
	MaxChange float64 // largest relative change per block
	Min       uint64

	maxIncrease float64
}

func (s *Incremental) Name() string {
	return STRATEGY_INCREMENTAL
}

func (s *Incremental) Next(history History) uint64 {
	points := history(2)
	if len(points) < 2 {
		return None{}.Next(history)
	}
	cur := points[1].Difficulty
	observed := points[1].Time - points[0].Time
	if observed == s.Target || s.Target <= 0 {
		return cur
	}
	step := s.Gain * (1 - float64(observed)/float64(s.Target))
	step = math.Max(-s.MaxChange, math.Min(s.MaxIncrease(), step))
	next := uint64(math.Round(float64(cur) * math.Exp(step)))

	// a correction too small to show up in integers still moves by one
	if observed < s.Target && next <= cur {
		next = cur + 1
	}
	if observed > s.Target && next >= cur && cur > 0 {
		next = cur - 1
	}
	if next < s.Min {
		next = s.Min
	}
	return next
}

// MaxIncrease is the clamp of upward steps, never above MaxChange.
func (s *Incremental) MaxIncrease() float64 {
	if s.maxIncrease == 0 {
		s.maxIncrease = balancedIncrease(s.Gain, s.MaxChange)
	}
	return s.maxIncrease
}

// meanStep is the expected step for intervals r ~ Exp(1) in units of the
// target, with steps clamped to [-down, up].
func meanStep(gain float64, up float64, down float64) float64 {
	a := math.Max(0, 1-up/gain) // below a the step is up
	b := 1 + down/gain          // above b the step is -down
	return up*(1-math.Exp(-a)) + gain*(b*math.Exp(-b)-a*math.Exp(-a)) - down*math.Exp(-b)
}

// balancedIncrease solves meanStep(gain, up, down) = 0 for up by bisection.
func balancedIncrease(gain float64, down float64) float64 {
	if gain <= 0 || down <= 0 {
		return down
	}
	lo, hi := 0.0, math.Min(gain, down)
	if meanStep(gain, hi, down) <= 0 {
		return hi
	}
	for i := 0; i < 64; i++ {
		mid := (lo + hi) / 2
		if meanStep(gain, mid, down) > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}

// Homestead is the Ethereum Homestead rule, the target takes the role of
// the fixed ten second bucket.
type Homestead struct {
	Target int64 // ms
	Min    uint64
}

func (s *Homestead) Name() string {
	return STRATEGY_HOMESTEAD
}

func (s *Homestead) Next(history History) uint64 {
	points := history(2)
	if len(points) < 2 {
		return None{}.Next(history)
	}
	parent := points[1]
	elapsed := (parent.Time - points[0].Time) / 1000
	bucket := s.Target / 1000 / 10 * 10
	if bucket <= 0 {
		bucket = 1
	}
	factor := 1 - elapsed/bucket
	if factor < -99 {
		factor = -99
	}
	step := int64(parent.Difficulty / 2048)
	next := int64(parent.Difficulty) + step*factor
	if next < int64(s.Min) {
		return s.Min
	}
	return uint64(next)
}

// Period retargets once every Window blocks from the mean interval of the
// window, moving by at most MaxFactor in either direction.
type Period struct {
	Window    int
	Target    int64 // ms
	MaxFactor float64
	Min       uint64
}

func (s *Period) Name() string {
	return STRATEGY_PERIOD
}

func (s *Period) Next(history History) uint64 {
	last := history(1)
	if len(last) == 0 {
		return 0
	}
	head := last[0]
	if s.Window <= 0 || head.Height == 0 || head.Height%s.Window != 0 {
		return head.Difficulty
	}
	points := history(s.Window + 1)
	if len(points) < 2 {
		return head.Difficulty
	}
	avg := float64(points[len(points)-1].Time-points[0].Time) / float64(len(points)-1)
	factor := s.MaxFactor
	if avg > 0 {
		factor = float64(s.Target) / avg
	}
	if s.MaxFactor > 1 {
		factor = math.Max(1/s.MaxFactor, math.Min(s.MaxFactor, factor))
	}
	next := uint64(math.Round(float64(head.Difficulty) * factor))
	if next < s.Min {
		next = s.Min
	}
	return next
}
