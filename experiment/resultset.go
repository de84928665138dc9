package experiment

import (
	"encoding/csv"
	"hash/fnv"
	"io"
	"sort"
	"strconv"
	"sync"

	"consensussim/util/metrics"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

const numShards = 16

var ErrDuplicateResult = eris.New("duplicate result")

// Result is the outcome of one instance. Failed runs carry Error and no metrics.
type Result struct {
	Key        string             `json:"key"`
	Point      Point              `json:"point"`
	Repetition int                `json:"repetition"`
	Seed       uint64             `json:"seed"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Summary    *metrics.Summary   `json:"summary,omitempty"`
	Assertions []AssertionResult  `json:"assertions,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (r *Result) Failed() bool {
	return r.Error != ""
}

// Passed reports whether the run succeeded and every assertion held.
func (r *Result) Passed() bool {
	if r.Failed() {
		return false
	}
	for _, a := range r.Assertions {
		if !a.Passed {
			return false
		}
	}
	return true
}

type shard struct {
	mu      sync.Mutex
	results map[string]*Result
}

// ResultSet is an append-only collection keyed by run key. Writers only
// lock the shard their key hashes to.
type ResultSet struct {
	Name       string
	Parameters []string
	Metrics    []string
	shards     [numShards]shard
	checks     []PointCheck // set once after the sweep
}

func NewResultSet(name string, parameters []string, metricNames []string) *ResultSet {
	rs := &ResultSet{Name: name, Parameters: parameters, Metrics: metricNames}
	for i := range rs.shards {
		rs.shards[i].results = make(map[string]*Result)
	}
	return rs
}

func (rs *ResultSet) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &rs.shards[h.Sum32()%numShards]
}

// Add inserts a result. A key can only be added once.
func (rs *ResultSet) Add(result *Result) error {
	s := rs.shardFor(result.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.Key]; ok {
		return eris.Wrapf(ErrDuplicateResult, "%v", result.Key)
	}
	s.results[result.Key] = result
	return nil
}

func (rs *ResultSet) Get(key string) (*Result, bool) {
	s := rs.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[key]
	return result, ok
}

func (rs *ResultSet) Len() int {
	n := 0
	for i := range rs.shards {
		rs.shards[i].mu.Lock()
		n += len(rs.shards[i].results)
		rs.shards[i].mu.Unlock()
	}
	return n
}

// Results returns every result in sweep order.
func (rs *ResultSet) Results() []*Result {
	all := make([]*Result, 0)
	for i := range rs.shards {
		rs.shards[i].mu.Lock()
		for _, r := range rs.shards[i].results {
			all = append(all, r)
		}
		rs.shards[i].mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Point.Index != all[j].Point.Index {
			return all[i].Point.Index < all[j].Point.Index
		}
		return all[i].Repetition < all[j].Repetition
	})
	return all
}

// Failures returns the failed runs in sweep order.
func (rs *ResultSet) Failures() []*Result {
	failed := make([]*Result, 0)
	for _, r := range rs.Results() {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// SetPointChecks stores the assertions evaluated over repetitions.
func (rs *ResultSet) SetPointChecks(checks []PointCheck) {
	rs.checks = checks
}

func (rs *ResultSet) PointChecks() []PointCheck {
	return rs.checks
}

// Passed reports whether every run succeeded and met its assertions, and
// every point check held.
func (rs *ResultSet) Passed() bool {
	for _, r := range rs.Results() {
		if !r.Passed() {
			return false
		}
	}
	for _, c := range rs.checks {
		if !c.Passed() {
			return false
		}
	}
	return true
}

// Mean averages one metric over the successful runs.
func (rs *ResultSet) Mean(metric string) (float64, int) {
	sum, n := 0.0, 0
	for _, r := range rs.Results() {
		if v, ok := r.Metrics[metric]; ok && !r.Failed() {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// WriteCSV writes one row per run: parameters, repetition, seed, metrics, error.
func (rs *ResultSet) WriteCSV(out io.Writer) error {
	w := csv.NewWriter(out)
	header := append([]string{}, rs.Parameters...)
	header = append(header, "repetition", "seed")
	header = append(header, rs.Metrics...)
	header = append(header, "error")
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "writing csv header")
	}
	for _, r := range rs.Results() {
		row := make([]string, 0, len(header))
		for _, v := range r.Point.Values {
			row = append(row, v.String())
		}
		row = append(row, strconv.Itoa(r.Repetition), strconv.FormatUint(r.Seed, 10))
		for _, m := range rs.Metrics {
			if v, ok := r.Metrics[m]; ok {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, r.Error)
		if err := w.Write(row); err != nil {
			return eris.Wrapf(err, "writing csv row %v", r.Key)
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flushing csv")
}

type storedResults struct {
	Name       string       `json:"name"`
	Parameters []string     `json:"parameters"`
	Metrics    []string     `json:"metrics"`
	Results    []*Result    `json:"results"`
	Points     []PointCheck `json:"points,omitempty"`
}

func (rs *ResultSet) WriteJSON(out io.Writer) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	err := encoder.Encode(storedResults{rs.Name, rs.Parameters, rs.Metrics, rs.Results(), rs.checks})
	return eris.Wrap(err, "writing json results")
}
