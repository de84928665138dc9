package network

import (
	"math"
	"sort"

	"consensussim/interfaces"
	"consensussim/util/file"
	"consensussim/util/random"

	"github.com/rotisserie/eris"
	"golang.org/x/exp/rand"
)

// LatencyFactory creates the latency model of a new link.
type LatencyFactory func(dist file.DistributionConfig) (*random.DelaySampler, error)

// SamplerFactory draws every link's latency from one shared random stream.
func SamplerFactory(source rand.Source) LatencyFactory {
	return func(dist file.DistributionConfig) (*random.DelaySampler, error) {
		return random.NewDelaySampler(dist.Distribution, dist.Params, source)
	}
}

type linkSpec struct {
	from, to int
	latency  file.DistributionConfig
	drop     float64
	directed bool
}

// allToAll links every pair of nodes.
func allToAll(nodeIds []int, config *file.NetworkConfig) []linkSpec {
	specs := make([]linkSpec, 0, len(nodeIds)*(len(nodeIds)-1)/2)
	for i := 0; i < len(nodeIds); i++ {
		for j := i + 1; j < len(nodeIds); j++ {
			specs = append(specs, linkSpec{nodeIds[i], nodeIds[j], config.LinkLatency, config.DropProbability, config.Directed})
		}
	}
	return specs
}

// gossipLinks places nodes at random points of the unit square, joins them in a ring so the graph is
// connected, then connects every node to its nearest nodes until it has fanout neighbors.
func gossipLinks(nodeIds []int, config *file.NetworkConfig, rng *random.RNG) []linkSpec {
	n := len(nodeIds)
	type point struct{ x, y float64 }
	locations := make([]point, n)
	for i := range locations {
		locations[i] = point{rng.Uniform(), rng.Uniform()}
	}

	known := make(map[linkKey]bool)
	degree := make([]int, n)
	specs := make([]linkSpec, 0, n*config.Fanout)
	connect := func(i, j int) {
		if i == j {
			return
		}
		key := linkKey{i, j}
		if j < i {
			key = linkKey{j, i}
		}
		if known[key] {
			return
		}
		known[key] = true
		degree[i]++
		degree[j]++
		specs = append(specs, linkSpec{nodeIds[key.from], nodeIds[key.to], config.LinkLatency, config.DropProbability, config.Directed})
	}

	if n > 2 {
		for i := 0; i < n; i++ {
			connect(i, (i+1)%n)
		}
	} else if n == 2 {
		connect(0, 1)
	}

	for i := 0; i < n; i++ {
		if degree[i] >= config.Fanout {
			continue
		}
		others := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				others = append(others, j)
			}
		}
		dist := func(j int) float64 {
			return math.Hypot(locations[i].x-locations[j].x, locations[i].y-locations[j].y)
		}
		sort.SliceStable(others, func(a, b int) bool { return dist(others[a]) < dist(others[b]) })
		for _, j := range others {
			if degree[i] >= config.Fanout {
				break
			}
			connect(i, j)
		}
	}
	return specs
}

// predefinedLinks takes the links verbatim from the configuration.
func predefinedLinks(config *file.NetworkConfig) ([]linkSpec, error) {
	specs := make([]linkSpec, 0, len(config.Links))
	for i, l := range config.Links {
		if l.From == l.To {
			return nil, eris.Wrapf(interfaces.ErrConfig, "link %v connects node %v to itself", i, l.From)
		}
		latency := l.Latency
		if latency.IsZero() {
			latency = config.LinkLatency
		}
		drop := l.DropProbability
		if drop == 0 {
			drop = config.DropProbability
		}
		specs = append(specs, linkSpec{l.From, l.To, latency, drop, l.Directed})
	}
	return specs, nil
}
