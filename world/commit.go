package world

import (
	"strconv"

	"consensussim/event/events"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/metrics"

	"github.com/rotisserie/eris"
)

// CommitBlock records that a node treats a block as final. Two correct
// nodes finalizing different blocks at one height is a conflict.
func (world *World) CommitBlock(nodeId int, blockId ledger.BlockId) error {
	n := world.Node(nodeId)
	if n == nil {
		return eris.Wrapf(interfaces.ErrUnknownNode, "commit by %d", nodeId)
	}
	block, ok := world.arena.Block(blockId)
	if !ok {
		return eris.Wrapf(ledger.ErrUnknownBlock, "commit of %d by %d", blockId, nodeId)
	}
	now := world.WTime
	world.audit.Audit(nodeId, metrics.BLOCK_COMMITTED, "b"+strconv.Itoa(int(blockId)), "", now)

	if !n.IsFaulty() {
		if first, ok := world.heightCommits[block.Height()]; ok && first != blockId {
			world.metrics.Record(metrics.FINALITY_VIOLATION, now, nodeId, float64(block.Height()))
			return eris.Wrapf(interfaces.ErrConflictingCommit, "height %d: block %d by node %d, block %d before", block.Height(), blockId, nodeId, first)
		}
		world.heightCommits[block.Height()] = blockId
		if _, ok := world.committedAt[blockId]; !ok {
			world.committedAt[blockId] = now
			world.metrics.Record(metrics.BLOCK_COMMITTED, now, nodeId, float64(block.TxCount()))
		}
	}

	for _, txId := range block.Transactions() {
		tx, ok := world.arena.Transaction(txId)
		if !ok || tx.Origin() != nodeId || tx.Client() < 0 || tx.Client() >= len(world.clients) {
			continue
		}
		client := world.clients[tx.Client()]
		if client.Pending != txId {
			continue
		}
		client.Pending = ledger.NoTx
		world.metrics.Record(metrics.TX_COMMITTED, now, nodeId, float64(now-tx.SubmittedAt()))
		if _, err := world.Schedule(events.NewTxCreationEvent(now+client.Interval, nodeId, client.Id)); err != nil {
			return err
		}
	}
	return nil
}

// CommittedAt returns when a correct node first committed the block.
func (world *World) CommittedAt(blockId ledger.BlockId) (int64, bool) {
	t, ok := world.committedAt[blockId]
	return t, ok
}

func (world *World) SubmitClientTransaction(clientId int) error {
	if clientId < 0 || clientId >= len(world.clients) {
		return eris.Wrapf(interfaces.ErrSimulation, "unknown client %d", clientId)
	}
	client := world.clients[clientId]
	n := world.Node(client.NodeId)
	if client.HasPending() || n == nil || !n.IsOnline() {
		return nil
	}
	tx := world.arena.NewTransaction(n.Id(), client.Id, world.WTime, world.sizes.Transaction)
	client.Pending = tx.Id()
	client.Issued++
	world.metrics.Record(metrics.TX_SUBMITTED, world.WTime, n.Id(), float64(tx.Size()))
	return n.Protocol().SubmitTransaction(n, tx, world)
}
