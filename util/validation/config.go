package validation

import (
	"fmt"
	"strings"

	"consensussim/interfaces"
	"consensussim/util/file"
	"consensussim/util/metrics"

	"github.com/rotisserie/eris"
)

// collected configuration problems, reported together as one ConfigError
type problems []string

func (p *problems) add(format string, args ...interface{}) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err(what string) error {
	if len(p) == 0 {
		return nil
	}
	errMessage := "There are configuration errors in " + what + ":\n"
	for _, e := range p {
		errMessage += e + "\n"
	}
	return eris.Wrap(interfaces.ErrConfig, strings.TrimSuffix(errMessage, "\n"))
}

func ValidateConfig(config *file.Config) error {
	var errs problems
	if config.OutPath() == "" {
		errs.add("OutPath should be set")
	}
	if strings.HasSuffix(config.OutPath(), "/") {
		errs.add("OutPath should not end with '/'")
	}
	if config.Parallelism() < 0 {
		errs.add("parallelism must not be negative")
	}
	if config.WatchdogSeconds() < 0 {
		errs.add("watchdogSeconds must not be negative")
	}
	if config.MaxQueueLength() < 0 {
		errs.add("maxQueueLength must not be negative")
	}
	return errs.err("config")
}

// ValidateExperiment checks an experiment and everything it references before any run starts.
func ValidateExperiment(name string, experiment *file.ExperimentConfig, library *file.Library) error {
	var errs problems
	protocol, network := resolve(&errs, experiment.Protocol, experiment.Network, library)
	if protocol != nil && network != nil {
		errs = append(errs, instanceProblems(protocol, network, &experiment.Failures, &experiment.Timeout)...)
	} else {
		errs = append(errs, timeoutProblems(&experiment.Timeout)...)
	}

	seen := make(map[string]bool)
	for _, r := range experiment.Parameters {
		if seen[r.Name] {
			errs.add("parameter %q declared twice", r.Name)
		}
		seen[r.Name] = true
		if !isParameter(r.Name) {
			errs.add("unknown parameter %q", r.Name)
		}
		if r.Step <= 0 {
			errs.add("parameter %q: step must be positive", r.Name)
		}
		if r.End < r.Start {
			errs.add("parameter %q: empty range %v..%v", r.Name, r.Start, r.End)
		}
		if protocol != nil && network != nil && isParameter(r.Name) {
			// the value itself is checked per point, this only checks the parameter applies
			if err := file.ApplyParameter(r.Name, r.Start, protocol.Clone(), network.Clone(), &file.FailureConfig{}); err != nil {
				errs.add("parameter %q: %v", r.Name, err)
			}
		}
	}
	for _, m := range experiment.Metrics {
		if !metrics.IsMetricName(m) {
			errs.add("unknown metric %q", m)
		}
	}
	if experiment.Repetitions < 0 {
		errs.add("repetitions must not be negative")
	}
	errs = append(errs, assertProblems(experiment.Asserts)...)
	return errs.err("experiment " + name)
}

func ValidateTest(name string, test *file.TestConfig, library *file.Library) error {
	var errs problems
	if len(test.Asserts) == 0 {
		errs.add("a test needs at least one assertion")
	}
	if err := errs.err("test " + name); err != nil {
		return err
	}
	return ValidateExperiment(name, test.Experiment(), library)
}

// ValidateInstance checks one sweep point after parameter values were applied.
func ValidateInstance(protocol *file.ProtocolConfig, network *file.NetworkConfig, failures *file.FailureConfig, timeout *file.TimeoutConfig) error {
	var errs problems
	errs = append(errs, instanceProblems(protocol, network, failures, timeout)...)
	return errs.err("run")
}

func resolve(errs *problems, protocolName string, networkName string, library *file.Library) (*file.ProtocolConfig, *file.NetworkConfig) {
	protocol, err := library.Protocol(protocolName)
	if err != nil {
		errs.add("unknown protocol %q", protocolName)
	}
	network, err := library.Network(networkName)
	if err != nil {
		errs.add("unknown network %q", networkName)
	}
	return protocol, network
}

func instanceProblems(protocol *file.ProtocolConfig, network *file.NetworkConfig, failures *file.FailureConfig, timeout *file.TimeoutConfig) problems {
	var errs problems
	errs = append(errs, protocolProblems(protocol)...)
	errs = append(errs, networkProblems(network)...)
	errs = append(errs, failureProblems(failures, protocol, network)...)
	errs = append(errs, timeoutProblems(timeout)...)
	return errs
}

func protocolProblems(p *file.ProtocolConfig) problems {
	var errs problems
	protocolType, ok := interfaces.PROTOCOL_TYPE_MAP[p.Type]
	if !ok {
		errs.add("unknown protocol type %q", p.Type)
		return errs
	}
	switch protocolType {
	case interfaces.NAKAMOTO:
		n := p.Nakamoto
		if n == nil {
			errs.add("nakamoto protocol without nakamoto section")
			return errs
		}
		pow := n.BlockGeneration
		if pow.InitialDifficulty == 0 {
			errs.add("initialDifficulty must be positive")
		}
		if pow.TargetBlockInterval <= 0 {
			errs.add("targetBlockInterval must be positive")
		}
		if pow.HashRate < 0 {
			errs.add("hashRate must not be negative")
		}
		a := pow.Adjustment
		switch a.Strategy {
		case "", "none", "homestead":
		case "incremental":
			if a.MaxChange <= 0 || a.MaxChange >= 1 {
				errs.add("incremental adjustment: maxChange must be in (0, 1)")
			}
			if a.Gain <= 0 {
				errs.add("incremental adjustment: gain must be positive")
			}
		case "period":
			if a.WindowSize <= 0 {
				errs.add("period adjustment: windowSize must be positive")
			}
			if a.MaxFactor < 1 {
				errs.add("period adjustment: maxFactor must be at least 1")
			}
		default:
			errs.add("unknown adjustment strategy %q", a.Strategy)
		}
		if n.MaxBlockSize < 0 {
			errs.add("maxBlockSize must not be negative")
		}
		if n.CommitDelay < 0 {
			errs.add("commitDelay must not be negative")
		}
		if n.RetryDelay <= 0 {
			errs.add("retryDelay must be positive")
		}
	case interfaces.STAKE:
		s := p.Stake
		if s == nil {
			errs.add("stake protocol without stake section")
			return errs
		}
		if s.SlotLength <= 0 {
			errs.add("slotLength must be positive")
		}
		if s.MaxBlockSize < 0 {
			errs.add("maxBlockSize must not be negative")
		}
		if s.CommitDelay < 0 {
			errs.add("commitDelay must not be negative")
		}
		if s.RetryDelay <= 0 {
			errs.add("retryDelay must be positive")
		}
	case interfaces.PBFT:
		b := p.Pbft
		if b == nil {
			errs.add("pbft protocol without pbft section")
			return errs
		}
		if b.MaxBlockSize < 0 {
			errs.add("maxBlockSize must not be negative")
		}
		if b.MaxBlockInterval <= 0 {
			errs.add("maxBlockInterval must be positive")
		}
		if b.RoundTimeout <= 0 {
			errs.add("roundTimeout must be positive")
		}
	case interfaces.GOSSIP_ONLY:
		g := p.Gossip
		if g == nil {
			errs.add("gossip protocol without gossip section")
			return errs
		}
		if g.RetryDelay <= 0 {
			errs.add("retryDelay must be positive")
		}
		if g.BlockSize < 0 {
			errs.add("blockSize must not be negative")
		}
		if g.GenerationInterval < 0 {
			errs.add("generationInterval must not be negative")
		}
	}
	return errs
}

func networkProblems(n *file.NetworkConfig) problems {
	var errs problems
	topology, ok := interfaces.TOPOLOGY_MAP[n.Topology]
	if !ok {
		errs.add("unknown topology %q", n.Topology)
		return errs
	}
	if topology == interfaces.PREDEFINED {
		if len(n.Nodes) == 0 {
			errs.add("predefined network without nodes")
		}
		mining := 0
		for i, node := range n.Nodes {
			role, ok := interfaces.NODE_ROLE_MAP[node.Role]
			if !ok {
				errs.add("node %v: unknown role %q", i, node.Role)
			}
			if role == interfaces.MINING_NODE {
				mining++
			}
		}
		if len(n.Nodes) > 0 && mining == 0 {
			errs.add("predefined network without mining nodes")
		}
		for i, l := range n.Links {
			if l.From < 0 || l.From >= len(n.Nodes) || l.To < 0 || l.To >= len(n.Nodes) {
				errs.add("link %v: endpoint out of range", i)
			}
			if l.From == l.To {
				errs.add("link %v: self link", i)
			}
			if l.DropProbability < 0 || l.DropProbability > 1 {
				errs.add("link %v: dropProbability must be in [0, 1]", i)
			}
		}
	} else {
		if n.NumMiningNodes <= 0 {
			errs.add("numMiningNodes must be positive")
		}
		if n.NumNonMiningNodes < 0 || n.NumClientNodes < 0 {
			errs.add("node counts must not be negative")
		}
		if topology == interfaces.GOSSIP && n.Fanout <= 0 {
			errs.add("gossip topology needs a positive fanout")
		}
	}
	if n.DropProbability < 0 || n.DropProbability >= 1 {
		errs.add("dropProbability must be in [0, 1)")
	}
	if n.NodeBandwidth < 0 {
		errs.add("nodeBandwidth must not be negative")
	}
	if n.Workload.NumClients < 0 || n.Workload.ClientStartupInterval < 0 || n.Workload.TransactionInterval < 0 {
		errs.add("workload values must not be negative")
	}
	return errs
}

func failureProblems(f *file.FailureConfig, p *file.ProtocolConfig, n *file.NetworkConfig) problems {
	var errs problems
	if f.FaultyFraction < 0 || f.FaultyFraction >= 1 {
		errs.add("faultyFraction must be in [0, 1)")
	}
	policy, ok := interfaces.FAULT_POLICY_MAP[f.Policy]
	if !ok {
		errs.add("unknown fault policy %q", f.Policy)
		return errs
	}
	if f.FaultyFraction > 0 && policy == interfaces.FAULT_NONE {
		errs.add("faultyFraction set without a fault policy")
	}
	if policy == interfaces.FAULT_SELFISH && p.Type != interfaces.NAKAMOTO.String() && p.Type != interfaces.STAKE.String() {
		errs.add("fault policy selfish needs a chain protocol, got %q", p.Type)
	}
	if policy == interfaces.FAULT_DELAY && f.ExtraDelay <= 0 {
		errs.add("fault policy delay needs a positive extraDelay")
	}
	return errs
}

func timeoutProblems(t *file.TimeoutConfig) problems {
	var errs problems
	if t.Kind != file.TIMEOUT_SECONDS && t.Kind != file.TIMEOUT_BLOCKS {
		errs.add("timeout kind must be %q or %q, got %q", file.TIMEOUT_SECONDS, file.TIMEOUT_BLOCKS, t.Kind)
	}
	if t.Warmup <= 0 {
		errs.add("warmup must be positive")
	}
	if t.Runtime <= 0 {
		errs.add("runtime must be positive")
	}
	return errs
}

func assertProblems(asserts []file.AssertConfig) problems {
	var errs problems
	for i, a := range asserts {
		if !metrics.IsMetricName(a.Metric) {
			errs.add("assert %v: unknown metric %q", i, a.Metric)
		}
		switch {
		case a.InRange != nil && a.GreaterThan != nil:
			errs.add("assert %v: use either inRange or greaterThan", i)
		case a.InRange == nil && a.GreaterThan == nil:
			errs.add("assert %v: missing constraint", i)
		case a.InRange != nil && a.InRange.Max < a.InRange.Min:
			errs.add("assert %v: empty range", i)
		}
	}
	return errs
}

func isParameter(name string) bool {
	for _, p := range file.ParameterNames() {
		if p == name {
			return true
		}
	}
	return false
}
