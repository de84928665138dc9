package network

import (
	"consensussim/util/random"
)

// Link carries messages from one node to another. Undirected links are shared by both directions.
type Link struct {
	From            int
	To              int
	DropProbability float64
	Directed        bool
	latency         *random.DelaySampler
}

func NewLink(from int, to int, latency *random.DelaySampler, dropProbability float64, directed bool) *Link {
	return &Link{From: from, To: to, DropProbability: dropProbability, Directed: directed, latency: latency}
}

// Latency samples the propagation delay of one message in ticks.
func (l *Link) Latency() int64 {
	return l.latency.Sample()
}

type linkKey struct {
	from int
	to   int
}

// transmissionDelay is the time to push size bytes through an uplink of bandwidth bits per second.
func transmissionDelay(size int, bandwidth float64) int64 {
	if bandwidth <= 0 || size <= 0 {
		return 0
	}
	ticks := float64(size) * 8 * 1000 / bandwidth
	delay := int64(ticks)
	if float64(delay) < ticks {
		delay++
	}
	return delay
}
