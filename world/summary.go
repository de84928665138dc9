package world

import (
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/metrics"
)

// AgreedHead is the head held by most correct online nodes, ties go to the
// greater height and then to the lower block id.
func (world *World) AgreedHead() ledger.BlockId {
	votes := make(map[ledger.BlockId]int)
	for _, n := range world.nodes {
		if n.IsFaulty() || !n.IsOnline() {
			continue
		}
		votes[world.headOf(n)]++
	}
	best := ledger.GenesisId
	bestVotes := -1
	for id, v := range votes {
		if v > bestVotes || (v == bestVotes && world.better(id, best)) {
			best, bestVotes = id, v
		}
	}
	return best
}

func (world *World) headOf(n interfaces.INode) ledger.BlockId {
	return n.Chain().Head()
}

func (world *World) better(a ledger.BlockId, b ledger.BlockId) bool {
	blockA, _ := world.arena.Block(a)
	blockB, _ := world.arena.Block(b)
	if blockA.Height() != blockB.Height() {
		return blockA.Height() > blockB.Height()
	}
	return a < b
}

// Snapshot describes the chain at the end of the run. Gossip has no forks,
// every block of the source counts as canonical. Equivocation copies are
// not produced blocks, a canonical copy makes its origin canonical.
func (world *World) Snapshot() metrics.ChainSnapshot {
	snapshot := metrics.ChainSnapshot{NumLinks: world.network.NumLinks()}
	peers := 0
	for _, n := range world.nodes {
		peers += len(n.Peers())
		switch n.Role() {
		case interfaces.MINING_NODE:
			snapshot.NumMiningNodes++
		case interfaces.NON_MINING_NODE:
			snapshot.NumNonMiningNodes++
		}
	}
	if len(world.nodes) > 0 {
		snapshot.MeanPeerCount = float64(peers) / float64(len(world.nodes))
	}

	gossip := world.protocolType == interfaces.GOSSIP_ONLY
	head := world.AgreedHead()
	canonical := make(map[ledger.BlockId]bool)
	for _, id := range world.arena.Chain(head) {
		canonical[id] = true
		block, _ := world.arena.Block(id)
		if origin, forged := block.ForgedFrom(); forged {
			canonical[origin] = true
		}
	}
	for _, block := range world.arena.Blocks() {
		if _, forged := block.ForgedFrom(); forged || block.IsGenesis() {
			continue
		}
		info := metrics.BlockInfo{
			Id:        int(block.Id()),
			Producer:  block.Producer(),
			CreatedAt: block.CreatedAt(),
			TxCount:   block.TxCount(),
			Canonical: gossip || canonical[block.Id()],
		}
		snapshot.Produced = append(snapshot.Produced, info)
		if gossip {
			snapshot.Canonical = append(snapshot.Canonical, info)
		}
	}
	if !gossip {
		for _, id := range world.arena.Chain(head)[1:] {
			block, _ := world.arena.Block(id)
			snapshot.Canonical = append(snapshot.Canonical, metrics.BlockInfo{
				Id:        int(id),
				Producer:  block.Producer(),
				CreatedAt: block.CreatedAt(),
				TxCount:   block.TxCount(),
				Canonical: true,
			})
		}
	}
	return snapshot
}

// Summary aggregates the run over its observation window.
func (world *World) Summary() *metrics.Summary {
	if !world.finished {
		world.finish()
	}
	return metrics.Aggregate(world.metrics, world.Snapshot(), world.window)
}
