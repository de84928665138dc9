package experiment

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// PointSummary condenses the repetitions of one sweep point.
type PointSummary struct {
	Key    string
	Point  Point
	Runs   int
	Failed int
	Mean   map[string]float64
	Median map[string]float64
	StdDev map[string]float64
}

// Summarize groups the results by sweep point and reduces every metric over the successful repetitions.
func Summarize(rs *ResultSet) []PointSummary {
	byPoint := make(map[int]*PointSummary)
	samples := make(map[int]map[string][]float64)
	for _, r := range rs.Results() {
		s, ok := byPoint[r.Point.Index]
		if !ok {
			s = &PointSummary{Key: r.Point.Key(), Point: r.Point}
			byPoint[r.Point.Index] = s
			samples[r.Point.Index] = make(map[string][]float64)
		}
		s.Runs++
		if r.Failed() {
			s.Failed++
			continue
		}
		for _, m := range rs.Metrics {
			samples[r.Point.Index][m] = append(samples[r.Point.Index][m], r.Metrics[m])
		}
	}

	indices := make([]int, 0, len(byPoint))
	for index := range byPoint {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	summaries := make([]PointSummary, 0, len(indices))
	for _, index := range indices {
		s := byPoint[index]
		s.Mean, s.Median, s.StdDev = make(map[string]float64), make(map[string]float64), make(map[string]float64)
		for m, xs := range samples[index] {
			sorted := append([]float64(nil), xs...)
			sort.Float64s(sorted)
			s.Mean[m] = stat.Mean(sorted, nil)
			s.Median[m] = stat.Quantile(0.5, stat.Empirical, sorted, nil)
			if len(sorted) > 1 {
				s.StdDev[m] = stat.StdDev(sorted, nil)
			}
		}
		summaries = append(summaries, *s)
	}
	return summaries
}

// WriteSummaryCSV writes one line per sweep point with mean, median and sd of every metric.
func WriteSummaryCSV(out io.Writer, metricNames []string, summaries []PointSummary) error {
	header := []string{"point", "runs", "failed"}
	for _, m := range metricNames {
		header = append(header, m+" mean", m+" median", m+" sd")
	}
	if _, err := fmt.Fprintln(out, strings.Join(header, " ; ")); err != nil {
		return eris.Wrap(err, "writing summary header")
	}
	for _, s := range summaries {
		line := []string{s.Key, fmt.Sprint(s.Runs), fmt.Sprint(s.Failed)}
		for _, m := range metricNames {
			line = append(line, convert(s.Mean[m]), convert(s.Median[m]), convert(s.StdDev[m]))
		}
		if _, err := fmt.Fprintln(out, strings.Join(line, " ; ")); err != nil {
			return eris.Wrapf(err, "writing summary of %v", s.Key)
		}
	}
	return nil
}

func convert(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%f", v)
}

// ReadResults loads a result set written by WriteJSON.
func ReadResults(in io.Reader) (*ResultSet, error) {
	var stored storedResults
	if err := json.NewDecoder(in).Decode(&stored); err != nil {
		return nil, eris.Wrap(err, "reading json results")
	}
	rs := NewResultSet(stored.Name, stored.Parameters, stored.Metrics)
	for _, r := range stored.Results {
		if err := rs.Add(r); err != nil {
			return nil, err
		}
	}
	rs.SetPointChecks(stored.Points)
	return rs, nil
}
