package experiment

import (
	"math"
	"strconv"
	"strings"

	"consensussim/util/file"
)

// Value is one parameter setting of a sweep point.
type Value struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	integer bool
}

func (v Value) String() string {
	if v.integer {
		return strconv.FormatInt(int64(math.Round(v.Value)), 10)
	}
	return strconv.FormatFloat(v.Value, 'g', -1, 64)
}

// Point is one combination of the declared parameter ranges.
type Point struct {
	Index  int     `json:"index"`
	Values []Value `json:"values"`
}

// Key identifies the combination, e.g. "maxBlockSize=100,numMiningNodes=10".
// A sweep without parameters has the key "default".
func (p Point) Key() string {
	if len(p.Values) == 0 {
		return "default"
	}
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		parts[i] = v.Name + "=" + v.String()
	}
	return strings.Join(parts, ",")
}

// NumSteps is the number of values start, start+step, ... up to end inclusive.
func NumSteps(r file.RangeConfig) int {
	if r.Step <= 0 || r.End < r.Start {
		return 0
	}
	return int(math.Floor((r.End-r.Start)/r.Step+1e-9)) + 1
}

// valueAt avoids accumulating rounding errors by multiplying instead of adding.
func valueAt(r file.RangeConfig, i int) Value {
	v := r.Start + float64(i)*r.Step
	if r.Integer() {
		v = math.Round(v)
	} else {
		v = math.Round(v*1e9) / 1e9
	}
	return Value{Name: r.Name, Value: v, integer: r.Integer()}
}

// Expand returns the cartesian product of the ranges in mixed radix order,
// the first parameter changing fastest.
func Expand(ranges []file.RangeConfig) []Point {
	total := 1
	sizes := make([]int, len(ranges))
	for i, r := range ranges {
		sizes[i] = NumSteps(r)
		total *= sizes[i]
	}
	points := make([]Point, 0, total)
	for index := 0; index < total; index++ {
		values := make([]Value, len(ranges))
		rest := index
		for i, r := range ranges {
			values[i] = valueAt(r, rest%sizes[i])
			rest /= sizes[i]
		}
		points = append(points, Point{Index: index, Values: values})
	}
	return points
}
