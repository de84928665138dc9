package file

import "math"

type DistributionConfig struct {
	Distribution string    `yaml:"distribution"`
	Params       []float64 `yaml:"params"`
}

func Fixed(value float64) DistributionConfig {
	return DistributionConfig{Distribution: "fixed", Params: []float64{value}}
}

// IsZero reports whether no distribution was configured.
func (d DistributionConfig) IsZero() bool {
	return d.Distribution == "" && len(d.Params) == 0
}

func (d DistributionConfig) clone() DistributionConfig {
	return DistributionConfig{Distribution: d.Distribution, Params: append([]float64(nil), d.Params...)}
}

type ProtocolConfig struct {
	Type     string          `yaml:"type"` // nakamoto | stake | pbft | gossip
	Nakamoto *NakamotoConfig `yaml:"nakamoto,omitempty"`
	Stake    *StakeConfig    `yaml:"stake,omitempty"`
	Pbft     *PbftConfig     `yaml:"pbft,omitempty"`
	Gossip   *GossipConfig   `yaml:"gossip,omitempty"`
}

type NakamotoConfig struct {
	BlockGeneration ProofOfWorkConfig `yaml:"blockGeneration"`
	UseGhost        bool              `yaml:"useGhost"`
	MaxBlockSize    int               `yaml:"maxBlockSize"` // transactions
	CommitDelay     int               `yaml:"commitDelay"`  // confirming descendants
	RetryDelay      int64             `yaml:"retryDelay"`   // ms
}

type ProofOfWorkConfig struct {
	InitialDifficulty   uint64           `yaml:"initialDifficulty"`
	TargetBlockInterval float64          `yaml:"targetBlockInterval"` // s
	HashRate            float64          `yaml:"hashRate"`            // difficulty per second over the whole network, 0 derives it
	Adjustment          AdjustmentConfig `yaml:"adjustment"`
}

type AdjustmentConfig struct {
	Strategy      string  `yaml:"strategy"`      // incremental | homestead | period | none
	WindowSize    int     `yaml:"windowSize"`    // blocks, period
	MaxChange     float64 `yaml:"maxChange"`     // per block fraction, incremental
	Gain          float64 `yaml:"gain"`          // incremental
	MaxFactor     float64 `yaml:"maxFactor"`     // period
	MinDifficulty uint64  `yaml:"minDifficulty"` // floor for every strategy
}

type StakeConfig struct {
	SlotLength   int64 `yaml:"slotLength"` // ms
	MaxBlockSize int   `yaml:"maxBlockSize"`
	CommitDelay  int   `yaml:"commitDelay"`
	UseGhost     bool  `yaml:"useGhost"`
	RetryDelay   int64 `yaml:"retryDelay"`
}

type PbftConfig struct {
	MaxBlockSize     int   `yaml:"maxBlockSize"`
	MaxBlockInterval int64 `yaml:"maxBlockInterval"` // ms between proposals
	RoundTimeout     int64 `yaml:"roundTimeout"`     // ms until a view change
}

type GossipConfig struct {
	RetryDelay         int64 `yaml:"retryDelay"` // ms
	BlockSize          int   `yaml:"blockSize"`  // bytes
	GenerationInterval int64 `yaml:"generationInterval"`
}

func (p *ProtocolConfig) Clone() *ProtocolConfig {
	c := &ProtocolConfig{Type: p.Type}
	if p.Nakamoto != nil {
		n := *p.Nakamoto
		c.Nakamoto = &n
	}
	if p.Stake != nil {
		s := *p.Stake
		c.Stake = &s
	}
	if p.Pbft != nil {
		b := *p.Pbft
		c.Pbft = &b
	}
	if p.Gossip != nil {
		g := *p.Gossip
		c.Gossip = &g
	}
	return c
}

type NetworkConfig struct {
	Topology          string             `yaml:"topology"` // all-to-all | gossip | predefined
	NumMiningNodes    int                `yaml:"numMiningNodes"`
	NumNonMiningNodes int                `yaml:"numNonMiningNodes"`
	NumClientNodes    int                `yaml:"numClientNodes"`
	Fanout            int                `yaml:"fanout"`
	LinkLatency       DistributionConfig `yaml:"linkLatency"` // ms
	DropProbability   float64            `yaml:"dropProbability"`
	Directed          bool               `yaml:"directed"`
	NodeBandwidth     float64            `yaml:"nodeBandwidth"` // Mbit/s, 0 is unlimited
	HashPower         DistributionConfig `yaml:"hashPower"`
	Stake             DistributionConfig `yaml:"stake"`
	Workload          WorkloadConfig     `yaml:"workload"`
	Sizes             SizesConfig        `yaml:"sizes"`
	Nodes             []NodeConfig       `yaml:"nodes,omitempty"`
	Links             []LinkConfig       `yaml:"links,omitempty"`
}

type WorkloadConfig struct {
	NumClients            int     `yaml:"numClients"`
	ClientStartupInterval float64 `yaml:"clientStartupInterval"` // s over which client starts are spread
	TransactionInterval   int64   `yaml:"transactionInterval"`   // ms between commit and next submission
}

type SizesConfig struct {
	Header      int `yaml:"header"`
	Transaction int `yaml:"transaction"`
	Hash        int `yaml:"hash"`
	Vote        int `yaml:"vote"`
}

// WithDefaults fills unset sizes.
func (s SizesConfig) WithDefaults() SizesConfig {
	if s.Header == 0 {
		s.Header = 80
	}
	if s.Transaction == 0 {
		s.Transaction = 250
	}
	if s.Hash == 0 {
		s.Hash = 32
	}
	if s.Vote == 0 {
		s.Vote = 100
	}
	return s
}

type NodeConfig struct {
	Role      string  `yaml:"role"` // mining | non-mining | client
	HashPower float64 `yaml:"hashPower"`
	Stake     float64 `yaml:"stake"`
	Bandwidth float64 `yaml:"bandwidth"`
}

type LinkConfig struct {
	From            int                `yaml:"from"`
	To              int                `yaml:"to"`
	Latency         DistributionConfig `yaml:"latency"`
	DropProbability float64            `yaml:"dropProbability"`
	Directed        bool               `yaml:"directed"`
}

// NumNodes counts every node that takes part in the protocol.
func (n *NetworkConfig) NumNodes() int {
	if len(n.Nodes) > 0 {
		return len(n.Nodes)
	}
	return n.NumMiningNodes + n.NumNonMiningNodes + n.NumClientNodes
}

func (n *NetworkConfig) Clone() *NetworkConfig {
	c := *n
	c.LinkLatency = n.LinkLatency.clone()
	c.HashPower = n.HashPower.clone()
	c.Stake = n.Stake.clone()
	c.Nodes = append([]NodeConfig(nil), n.Nodes...)
	c.Links = make([]LinkConfig, len(n.Links))
	for i, l := range n.Links {
		c.Links[i] = l
		c.Links[i].Latency = l.Latency.clone()
	}
	return &c
}

type FailureConfig struct {
	FaultyFraction float64 `yaml:"faultyFraction"`
	Policy         string  `yaml:"policy"`     // crash | silent-drop | delay | equivocate | selfish
	ExtraDelay     int64   `yaml:"extraDelay"` // ms, delay policy
}

const (
	TIMEOUT_SECONDS = "seconds"
	TIMEOUT_BLOCKS  = "blocks"
)

type TimeoutConfig struct {
	Kind    string  `yaml:"kind"` // seconds | blocks
	Warmup  float64 `yaml:"warmup"`
	Runtime float64 `yaml:"runtime"`
}

func (t TimeoutConfig) InBlocks() bool {
	return t.Kind == TIMEOUT_BLOCKS
}

type RangeConfig struct {
	Name  string  `yaml:"name"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Step  float64 `yaml:"step"`
}

// Integer reports whether every value of the range is whole.
func (r RangeConfig) Integer() bool {
	return r.Start == math.Trunc(r.Start) && r.Step == math.Trunc(r.Step)
}

type InRangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type AssertConfig struct {
	Metric      string         `yaml:"metric"`
	InRange     *InRangeConfig `yaml:"inRange,omitempty"`
	GreaterThan *float64       `yaml:"greaterThan,omitempty"`
}

type ExperimentConfig struct {
	Protocol    string         `yaml:"protocol"`
	Network     string         `yaml:"network"`
	Failures    FailureConfig  `yaml:"failures"`
	Timeout     TimeoutConfig  `yaml:"timeout"`
	Parameters  []RangeConfig  `yaml:"parameters"`
	Metrics     []string       `yaml:"metrics"`
	Repetitions int            `yaml:"repetitions"`
	Asserts     []AssertConfig `yaml:"asserts,omitempty"`
}

// TestConfig is a validation scenario: a single point checked against assertions.
type TestConfig struct {
	Protocol    string         `yaml:"protocol"`
	Network     string         `yaml:"network"`
	Failures    FailureConfig  `yaml:"failures"`
	Timeout     TimeoutConfig  `yaml:"timeout"`
	Repetitions int            `yaml:"repetitions"`
	Asserts     []AssertConfig `yaml:"asserts"`
}

// Experiment turns a test into a sweep without parameters.
func (t *TestConfig) Experiment() *ExperimentConfig {
	metrics := make([]string, 0, len(t.Asserts))
	for _, a := range t.Asserts {
		metrics = append(metrics, a.Metric)
	}
	return &ExperimentConfig{
		Protocol:    t.Protocol,
		Network:     t.Network,
		Failures:    t.Failures,
		Timeout:     t.Timeout,
		Metrics:     metrics,
		Repetitions: t.Repetitions,
		Asserts:     t.Asserts,
	}
}

// SecondsToTicks converts simulated seconds to millisecond ticks.
func SecondsToTicks(s float64) int64 {
	return int64(math.Round(s * 1000))
}
