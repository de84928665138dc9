package consensus

import (
	"strconv"

	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/file"
	"consensussim/util/metrics"

	"github.com/rotisserie/eris"
)

// ReleasePolicy decides when a node publishes the blocks it produced.
type ReleasePolicy interface {
	// Withhold reports whether a freshly produced block stays private.
	Withhold(node interfaces.INode, block *ledger.Block) bool
	// Observed sees every block produced by someone else before it is
	// inserted and returns the private blocks to publish now.
	Observed(node interfaces.INode, block *ledger.Block) []ledger.BlockId
}

type publishAll struct{}

func (publishAll) Withhold(interfaces.INode, *ledger.Block) bool {
	return false
}

func (publishAll) Observed(interfaces.INode, *ledger.Block) []ledger.BlockId {
	return nil
}

type NakamotoParams struct {
	MaxBlockSize int
	CommitDelay  int
	RetryDelay   int64
	Sizes        file.SizesConfig
}

type waitingBlock struct {
	block *ledger.Block
	from  int
}

// Nakamoto is the longest-chain / GHOST engine shared by proof of work and
// stake slots. Blocks travel as announce, request and deliver.
type Nakamoto struct {
	params    NakamotoParams
	generator blockGenerator
	release   ReleasePolicy
	requests  *blockRequests
	waiting   map[ledger.BlockId][]waitingBlock // by missing parent
	buffered  map[ledger.BlockId]bool
}

func newNakamoto(params NakamotoParams, generator blockGenerator, release ReleasePolicy) *Nakamoto {
	if release == nil {
		release = publishAll{}
	}
	return &Nakamoto{
		params:    params,
		generator: generator,
		release:   release,
		requests:  newBlockRequests(params.RetryDelay, params.Sizes),
		waiting:   make(map[ledger.BlockId][]waitingBlock),
		buffered:  make(map[ledger.BlockId]bool),
	}
}

func (c *Nakamoto) Init(node interfaces.INode, world interfaces.IWorld) error {
	if node.Role() != interfaces.MINING_NODE {
		return nil
	}
	return c.generator.Start(node, world)
}

func (c *Nakamoto) HandleMessage(node interfaces.INode, senderId int, msg interfaces.IMessage, world interfaces.IWorld) error {
	switch m := msg.(type) {
	case *NotifyNewBlock:
		if node.Chain().Has(m.Block) || c.buffered[m.Block] {
			return nil
		}
		return c.requests.Announce(node, m.Block, senderId, world)
	case *GetBlock:
		block, ok := world.Arena().Block(m.Block)
		if !ok || !(node.Chain().Has(m.Block) || block.Producer() == node.Id()) {
			return nil
		}
		return world.Network().Send(node.Id(), senderId, NewSendBlock(block), world)
	case *SendBlock:
		c.requests.Delivered(node, m.Block.Id(), world)
		return c.receive(node, m.Block, senderId, world)
	case *SendTransaction:
		node.Mempool().Add(m.Tx)
	}
	return nil
}

func (c *Nakamoto) HandleTimer(node interfaces.INode, timer *interfaces.Timer, world interfaces.IWorld) error {
	if timer.Kind == interfaces.RETRY_TIMER {
		return c.requests.Retry(node, timer, world)
	}
	produce, err := c.generator.Fire(node, timer, world)
	if err != nil || !produce {
		return err
	}
	if _, err := c.ProduceBlock(node, world); err != nil {
		return err
	}
	return c.generator.Rearm(node, world)
}

func (c *Nakamoto) SubmitTransaction(node interfaces.INode, tx *ledger.Transaction, world interfaces.IWorld) error {
	node.Mempool().Add(tx.Id())
	msg := NewSendTransaction(tx)
	node.MarkSeen(msg.Key())
	return world.Network().Broadcast(node.Id(), msg, world)
}

func (c *Nakamoto) ProduceBlock(node interfaces.INode, world interfaces.IWorld) (*ledger.Block, error) {
	now := world.Time()
	parent := node.Chain().HeadBlock()
	txs := node.Mempool().Take(c.params.MaxBlockSize, c.pendingOnHead(node, world))
	block := world.Arena().NewBlock(parent, node.Id(), now, txs, BlockSize(c.params.Sizes, len(txs)), c.generator.Difficulty(parent), 0)

	world.Metrics().Record(metrics.BLOCK_PRODUCED, now, node.Id(), float64(len(txs)))
	if block.Difficulty() != parent.Difficulty() && !parent.IsGenesis() {
		world.Metrics().Record(metrics.DIFFICULTY_CHANGED, now, node.Id(), float64(block.Difficulty()))
	}
	world.Audit().Audit(node.Id(), metrics.BLOCK_PRODUCED, blockKey(block.Id()), "parent "+strconv.Itoa(int(parent.Id())), now)

	withhold := c.release.Withhold(node, block)
	if err := c.insert(node, block, node.Id(), world); err != nil {
		return block, err
	}
	if withhold {
		return block, nil
	}
	return block, c.announce(node, block.Id(), world)
}

// pendingOnHead collects the transactions already included between the finalized block and the head.
func (c *Nakamoto) pendingOnHead(node interfaces.INode, world interfaces.IWorld) map[ledger.TxId]bool {
	included := make(map[ledger.TxId]bool)
	for _, id := range node.Chain().HeadChain() {
		if block, ok := world.Arena().Block(id); ok {
			for _, tx := range block.Transactions() {
				included[tx] = true
			}
		}
	}
	return included
}

func (c *Nakamoto) ValidateBlock(node interfaces.INode, block *ledger.Block, world interfaces.IWorld) error {
	parent, ok := world.Arena().Block(block.Parent())
	if !ok {
		return eris.Wrapf(interfaces.ErrUnknownAncestor, "block %d", block.Id())
	}
	switch {
	case block.Height() != parent.Height()+1:
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d at height %d on parent at %d", block.Id(), block.Height(), parent.Height())
	case block.CreatedAt() < parent.CreatedAt():
		return eris.Wrapf(interfaces.ErrOlderBlock, "block %d", block.Id())
	case block.CreatedAt() > world.Time():
		return eris.Wrapf(interfaces.ErrFutureBlock, "block %d created at %d", block.Id(), block.CreatedAt())
	case block.TxCount() > c.params.MaxBlockSize:
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d holds %d transactions", block.Id(), block.TxCount())
	}
	return c.generator.Validate(block, parent)
}

func (c *Nakamoto) SelectHead(node interfaces.INode, world interfaces.IWorld) (ledger.BlockId, error) {
	head, changed, err := node.Chain().SelectHead()
	if err != nil {
		return head, eris.Wrapf(interfaces.ErrSimulation, "node %d: %v", node.Id(), err)
	}
	if changed {
		world.Audit().Audit(node.Id(), metrics.BLOCK_RECEIVED, blockKey(head), "new head", world.Time())
		return head, c.generator.Rearm(node, world)
	}
	return head, nil
}

// Finalize commits every head-chain block with enough confirmations and
// prunes the branches that can no longer win.
func (c *Nakamoto) Finalize(node interfaces.INode, world interfaces.IWorld) error {
	chain := node.Chain()
	finalized := chain.Finalize(c.params.CommitDelay)
	if len(finalized) == 0 {
		return nil
	}
	for _, id := range finalized {
		block, _ := world.Arena().Block(id)
		node.Mempool().Remove(block.Transactions()...)
		if err := world.CommitBlock(node.Id(), id); err != nil {
			if !eris.Is(err, interfaces.ErrConflictingCommit) {
				return err
			}
			world.Logger().Warn().Int("node", node.Id()).Int("block", int(id)).Msg("finalized a block conflicting with an earlier commit")
		}
	}
	chain.Prune()
	height := chain.FinalizedHeight()
	for parent, blocks := range c.waiting {
		if len(blocks) > 0 && blocks[0].block.Height() <= height+1 && !chain.Has(parent) {
			for _, w := range blocks {
				delete(c.buffered, w.block.Id())
			}
			delete(c.waiting, parent)
			c.requests.Forget(parent, world)
		}
	}
	return nil
}

func (c *Nakamoto) receive(node interfaces.INode, block *ledger.Block, from int, world interfaces.IWorld) error {
	chain := node.Chain()
	if chain.Has(block.Id()) || c.buffered[block.Id()] {
		return nil
	}
	if block.Height() <= chain.FinalizedHeight() {
		return nil
	}
	if !chain.Has(block.Parent()) {
		c.waiting[block.Parent()] = append(c.waiting[block.Parent()], waitingBlock{block, from})
		c.buffered[block.Id()] = true
		if c.requests.Pending(block.Parent()) || c.buffered[block.Parent()] {
			return nil
		}
		return c.requests.Announce(node, block.Parent(), from, world)
	}
	if err := c.ValidateBlock(node, block, world); err != nil {
		world.Audit().Audit(node.Id(), interfaces.SEND_BLOCK_MESSAGE, blockKey(block.Id()), err.Error(), world.Time())
		world.Logger().Debug().Int("node", node.Id()).Err(err).Msg("dropped invalid block")
		return nil
	}
	return c.insert(node, block, from, world)
}

func (c *Nakamoto) insert(node interfaces.INode, block *ledger.Block, from int, world interfaces.IWorld) error {
	now := world.Time()
	var release []ledger.BlockId
	if block.Producer() != node.Id() {
		release = c.release.Observed(node, block)
	}
	if err := node.Chain().Add(block.Id()); err != nil {
		if eris.Is(err, ledger.ErrPrunedAncestor) || eris.Is(err, ledger.ErrKnownBlock) {
			return nil
		}
		return eris.Wrapf(interfaces.ErrSimulation, "node %d: %v", node.Id(), err)
	}
	if block.Producer() != node.Id() {
		world.Metrics().Record(metrics.BLOCK_RECEIVED, now, node.Id(), float64(now-block.CreatedAt()))
		if err := c.announce(node, block.Id(), world, from); err != nil {
			return err
		}
		for _, id := range release {
			if err := c.announce(node, id, world); err != nil {
				return err
			}
		}
	}
	if _, err := c.SelectHead(node, world); err != nil {
		return err
	}
	if err := c.Finalize(node, world); err != nil {
		return err
	}

	children := c.waiting[block.Id()]
	delete(c.waiting, block.Id())
	for _, child := range children {
		delete(c.buffered, child.block.Id())
		if err := c.receive(node, child.block, child.from, world); err != nil {
			return err
		}
	}
	return nil
}

func (c *Nakamoto) announce(node interfaces.INode, id ledger.BlockId, world interfaces.IWorld, excludeIds ...int) error {
	return world.Network().Broadcast(node.Id(), NewNotifyNewBlock(id, c.params.Sizes), world, excludeIds...)
}
