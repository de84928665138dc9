package metrics

import (
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// scalar metric names
const (
	METRIC_BLOCK_INTERVAL              = "BlockInterval"
	METRIC_BLOCK_SIZE                  = "BlockSize"
	METRIC_ORPHAN_RATE                 = "OrphanRate"
	METRIC_WIN_RATE                    = "WinRate"
	METRIC_THROUGHPUT                  = "Throughput"
	METRIC_LATENCY                     = "Latency"
	METRIC_BLOCK_PROPAGATION_DELAY     = "BlockPropagationDelay"
	METRIC_BLOCK_PROPAGATION_DELAY_P90 = "BlockPropagationDelayP90"
	METRIC_NUM_NETWORK_MESSAGES        = "NumNetworkMessages"
	METRIC_NUM_DROPPED_MESSAGES        = "NumDroppedMessages"
	METRIC_NUM_VIEW_CHANGES            = "NumViewChanges"
	METRIC_COMMITTED_BLOCKS            = "CommittedBlocks"
	METRIC_PRODUCED_BLOCKS             = "ProducedBlocks"
	METRIC_NUM_LINKS                   = "NumLinks"
	METRIC_NUM_MINING_NODES            = "NumMiningNodes"
	METRIC_NUM_NON_MINING_NODES        = "NumNonMiningNodes"
	METRIC_NODE_PEER_COUNT             = "NodePeerCount"
)

var ErrUnknownMetric = eris.New("unknown metric")

func MetricNames() []string {
	return []string{
		METRIC_BLOCK_INTERVAL, METRIC_BLOCK_SIZE, METRIC_ORPHAN_RATE, METRIC_WIN_RATE, METRIC_THROUGHPUT,
		METRIC_LATENCY, METRIC_BLOCK_PROPAGATION_DELAY, METRIC_BLOCK_PROPAGATION_DELAY_P90,
		METRIC_NUM_NETWORK_MESSAGES, METRIC_NUM_DROPPED_MESSAGES, METRIC_NUM_VIEW_CHANGES,
		METRIC_COMMITTED_BLOCKS, METRIC_PRODUCED_BLOCKS, METRIC_NUM_LINKS, METRIC_NUM_MINING_NODES,
		METRIC_NUM_NON_MINING_NODES, METRIC_NODE_PEER_COUNT,
	}
}

func IsMetricName(name string) bool {
	for _, n := range MetricNames() {
		if n == name {
			return true
		}
	}
	return false
}

// Window is the closed observation interval [Start, End] in ticks.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (w Window) Contains(t int64) bool {
	return t >= w.Start && t <= w.End
}

func (w Window) Seconds() float64 {
	return float64(w.End-w.Start) / 1000
}

type BlockInfo struct {
	Id        int   `json:"id"`
	Producer  int   `json:"producer"`
	CreatedAt int64 `json:"createdAt"`
	TxCount   int   `json:"txCount"`
	Canonical bool  `json:"canonical"`
}

// ChainSnapshot is the end-of-run state the aggregator needs besides the sample series.
type ChainSnapshot struct {
	// Canonical holds the agreed chain from genesis (excluded) to the agreed head.
	Canonical []BlockInfo
	// Produced holds every produced block, Canonical set when it is an ancestor of the agreed head.
	Produced          []BlockInfo
	NumMiningNodes    int
	NumNonMiningNodes int
	NumLinks          int
	MeanPeerCount     float64
}

type Summary struct {
	BlockInterval            float64         `json:"blockInterval"` // seconds
	BlockSize                float64         `json:"blockSize"`     // transactions
	OrphanRate               float64         `json:"orphanRate"`
	WinRate                  float64         `json:"winRate"`
	Throughput               float64         `json:"throughput"`            // tx per second
	Latency                  float64         `json:"latency"`               // ms
	BlockPropagationDelay    float64         `json:"blockPropagationDelay"` // ms
	BlockPropagationDelayP90 float64         `json:"blockPropagationDelayP90"`
	NumNetworkMessages       float64         `json:"numNetworkMessages"`
	NumDroppedMessages       float64         `json:"numDroppedMessages"`
	NumViewChanges           float64         `json:"numViewChanges"`
	CommittedBlocks          float64         `json:"committedBlocks"`
	ProducedBlocks           float64         `json:"producedBlocks"`
	NumLinks                 float64         `json:"numLinks"`
	NumMiningNodes           float64         `json:"numMiningNodes"`
	NumNonMiningNodes        float64         `json:"numNonMiningNodes"`
	NodePeerCount            float64         `json:"nodePeerCount"`
	WinRatePerNode           map[int]float64 `json:"winRatePerNode,omitempty"`
	Window                   Window          `json:"window"`
}

// Aggregate reduces the samples inside window to scalars.
func Aggregate(c *Collector, snapshot ChainSnapshot, window Window) *Summary {
	summary := &Summary{
		Window:            window,
		NumLinks:          float64(snapshot.NumLinks),
		NumMiningNodes:    float64(snapshot.NumMiningNodes),
		NumNonMiningNodes: float64(snapshot.NumNonMiningNodes),
		NodePeerCount:     snapshot.MeanPeerCount,
		WinRatePerNode:    make(map[int]float64),
	}

	// production, orphans and wins
	attempts := make(map[int]int)
	won := make(map[int]int)
	produced, orphaned := 0, 0
	for _, b := range snapshot.Produced {
		if !window.Contains(b.CreatedAt) {
			continue
		}
		produced++
		attempts[b.Producer]++
		if b.Canonical {
			won[b.Producer]++
		} else {
			orphaned++
		}
	}
	summary.ProducedBlocks = float64(produced)
	if produced > 0 {
		summary.OrphanRate = float64(orphaned) / float64(produced)
		summary.WinRate = float64(produced-orphaned) / float64(produced)
	}
	for nodeId, n := range attempts {
		summary.WinRatePerNode[nodeId] = float64(won[nodeId]) / float64(n)
	}

	// intervals between consecutive canonical blocks ending inside the window
	intervals := make([]float64, 0, len(snapshot.Canonical))
	sizes := make([]float64, 0, len(snapshot.Canonical))
	prev := int64(0)
	for _, b := range snapshot.Canonical {
		if window.Contains(b.CreatedAt) {
			intervals = append(intervals, float64(b.CreatedAt-prev)/1000)
			sizes = append(sizes, float64(b.TxCount))
		}
		prev = b.CreatedAt
	}
	summary.BlockInterval = mean(intervals)
	summary.BlockSize = mean(sizes)

	committedTxs := 0.0
	for _, s := range c.Series(BLOCK_COMMITTED) {
		if window.Contains(s.Time) {
			summary.CommittedBlocks++
			committedTxs += s.Value
		}
	}
	if window.Seconds() > 0 {
		summary.Throughput = committedTxs / window.Seconds()
	}
	summary.Latency = mean(values(c.Series(TX_COMMITTED), window))

	delays := values(c.Series(BLOCK_RECEIVED), window)
	summary.BlockPropagationDelay = mean(delays)
	if len(delays) > 0 {
		sort.Float64s(delays)
		summary.BlockPropagationDelayP90 = stat.Quantile(0.9, stat.Empirical, delays, nil)
	}

	summary.NumNetworkMessages = float64(c.Count(MESSAGE_SENT, window))
	summary.NumDroppedMessages = float64(c.Count(MESSAGE_DROPPED, window))
	summary.NumViewChanges = float64(c.Count(VIEW_CHANGE, window))
	return summary
}

// Get looks up a scalar by metric name.
func (s *Summary) Get(name string) (float64, error) {
	switch name {
	case METRIC_BLOCK_INTERVAL:
		return s.BlockInterval, nil
	case METRIC_BLOCK_SIZE:
		return s.BlockSize, nil
	case METRIC_ORPHAN_RATE:
		return s.OrphanRate, nil
	case METRIC_WIN_RATE:
		return s.WinRate, nil
	case METRIC_THROUGHPUT:
		return s.Throughput, nil
	case METRIC_LATENCY:
		return s.Latency, nil
	case METRIC_BLOCK_PROPAGATION_DELAY:
		return s.BlockPropagationDelay, nil
	case METRIC_BLOCK_PROPAGATION_DELAY_P90:
		return s.BlockPropagationDelayP90, nil
	case METRIC_NUM_NETWORK_MESSAGES:
		return s.NumNetworkMessages, nil
	case METRIC_NUM_DROPPED_MESSAGES:
		return s.NumDroppedMessages, nil
	case METRIC_NUM_VIEW_CHANGES:
		return s.NumViewChanges, nil
	case METRIC_COMMITTED_BLOCKS:
		return s.CommittedBlocks, nil
	case METRIC_PRODUCED_BLOCKS:
		return s.ProducedBlocks, nil
	case METRIC_NUM_LINKS:
		return s.NumLinks, nil
	case METRIC_NUM_MINING_NODES:
		return s.NumMiningNodes, nil
	case METRIC_NUM_NON_MINING_NODES:
		return s.NumNonMiningNodes, nil
	case METRIC_NODE_PEER_COUNT:
		return s.NodePeerCount, nil
	default:
		return 0, eris.Wrapf(ErrUnknownMetric, "metric %v", name)
	}
}

func values(samples []Sample, window Window) []float64 {
	vals := make([]float64, 0, len(samples))
	for _, s := range samples {
		if window.Contains(s.Time) {
			vals = append(vals, s.Value)
		}
	}
	return vals
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
