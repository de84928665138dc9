package metrics

import (
	"io"
	"strconv"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"
)

type metricKind string

type IMetricKind interface {
	getMetricKind() metricKind
	String() string
}

// this is just for preventing simple string from being used as IMetricKind
func (kind metricKind) getMetricKind() metricKind {
	return kind
}

func (kind metricKind) String() string {
	return string(kind)
}

// add sample kinds here
const (
	BLOCK_PRODUCED     = metricKind("BlockProduced")     // value: tx count
	BLOCK_COMMITTED    = metricKind("BlockCommitted")    // value: tx count, first commit by any node
	BLOCK_RECEIVED     = metricKind("BlockReceived")     // value: ticks since creation
	TX_SUBMITTED       = metricKind("TxSubmitted")       // value: tx size
	TX_COMMITTED       = metricKind("TxCommitted")       // value: ticks since submission
	MESSAGE_SENT       = metricKind("MessageSent")       // value: bytes
	MESSAGE_RECEIVED   = metricKind("MessageReceived")   // value: bytes
	MESSAGE_DROPPED    = metricKind("MessageDropped")    // value: bytes
	ROUND_TRIP         = metricKind("RoundTrip")         // value: ticks from request to delivery
	VIEW_CHANGE        = metricKind("ViewChange")        // value: new view
	DIFFICULTY_CHANGED = metricKind("DifficultyChanged") // value: new difficulty
	FINALITY_VIOLATION = metricKind("FinalityViolation") // value: height
)

var ALL_KINDS = []IMetricKind{BLOCK_PRODUCED, BLOCK_COMMITTED, BLOCK_RECEIVED, TX_SUBMITTED, TX_COMMITTED, MESSAGE_SENT, MESSAGE_RECEIVED, MESSAGE_DROPPED, ROUND_TRIP, VIEW_CHANGE, DIFFICULTY_CHANGED, FINALITY_VIOLATION}

type Sample struct {
	Kind  IMetricKind `json:"kind"`
	Time  int64       `json:"time"`
	Node  int         `json:"node"`
	Value float64     `json:"value"`
}

// Sink receives every sample as soon as it is recorded. Implementations must not block.
type Sink interface {
	Publish(run string, sample Sample)
}

// Collector keeps one time-ordered series per kind for a single run.
// Samples arrive in simulation order, so appending keeps each series sorted.
type Collector struct {
	run         string
	series      map[IMetricKind][]Sample
	registry    metrics.Registry
	useRegistry bool
	sink        Sink
}

func NewCollector(run string, useRegistry bool) *Collector {
	return &Collector{run: run, series: make(map[IMetricKind][]Sample), registry: metrics.NewRegistry(), useRegistry: useRegistry}
}

func (c *Collector) SetSink(sink Sink) {
	c.sink = sink
}

func NameFormat(kind IMetricKind, id int) string {
	return kind.String() + "_" + strconv.Itoa(id)
}

func (c *Collector) Record(kind IMetricKind, time int64, nodeId int, value float64) {
	sample := Sample{Kind: kind, Time: time, Node: nodeId, Value: value}
	c.series[kind] = append(c.series[kind], sample)
	if c.useRegistry {
		metrics.GetOrRegisterCounter(kind.String()+"_Counter", c.registry).Inc(1)
		metrics.GetOrRegisterHistogram(kind.String()+"_Histogram", c.registry, metrics.NewUniformSample(1028)).Update(int64(value))
		if nodeId >= 0 {
			metrics.GetOrRegisterCounter(NameFormat(kind, nodeId)+"_Counter", c.registry).Inc(1)
		}
	}
	if c.sink != nil {
		c.sink.Publish(c.run, sample)
	}
}

// Series returns the samples of one kind. The slice must not be modified.
func (c *Collector) Series(kind IMetricKind) []Sample {
	return c.series[kind]
}

// Count returns the number of samples of kind inside the window.
func (c *Collector) Count(kind IMetricKind, window Window) int {
	n := 0
	for _, s := range c.series[kind] {
		if window.Contains(s.Time) {
			n++
		}
	}
	return n
}

func (c *Collector) Registry() metrics.Registry {
	return c.registry
}

func (c *Collector) WriteToFile(writer io.Writer) {
	metrics.WriteJSONOnce(c.registry, writer)
}

// ChannelSink forwards samples to a buffered channel and drops them when the consumer lags behind.
type ChannelSink struct {
	C       chan RunSample
	dropped uint64
}

type RunSample struct {
	Run string
	Sample
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan RunSample, buffer)}
}

func (s *ChannelSink) Publish(run string, sample Sample) {
	select {
	case s.C <- RunSample{Run: run, Sample: sample}:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
}

func (s *ChannelSink) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}
