package consensus

import (
	"consensussim/event/events"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/file"
	"consensussim/util/metrics"

	"github.com/rotisserie/eris"
)

type GossipParams struct {
	RetryDelay         int64
	BlockSize          int // bytes
	GenerationInterval int64
	Sizes              file.SizesConfig
	SourceId           int
}

// Gossip only spreads blocks of one source node, it measures how long a
// block of a given size needs to reach everybody. Received blocks go into
// the node's chain, out of order arrivals wait for their parent.
type Gossip struct {
	params   GossipParams
	requests *blockRequests
	waiting  map[ledger.BlockId][]waitingBlock // by missing parent
	buffered map[ledger.BlockId]bool
}

func newGossip(params GossipParams) *Gossip {
	return &Gossip{
		params:   params,
		requests: newBlockRequests(params.RetryDelay, params.Sizes),
		waiting:  make(map[ledger.BlockId][]waitingBlock),
		buffered: make(map[ledger.BlockId]bool),
	}
}

func (c *Gossip) Init(node interfaces.INode, world interfaces.IWorld) error {
	if node.Id() != c.params.SourceId {
		return nil
	}
	if _, err := c.ProduceBlock(node, world); err != nil {
		return err
	}
	return c.scheduleNext(node, world)
}

func (c *Gossip) scheduleNext(node interfaces.INode, world interfaces.IWorld) error {
	if c.params.GenerationInterval <= 0 {
		return nil
	}
	timer := &interfaces.Timer{Kind: interfaces.GENERATE_TIMER}
	_, err := world.Schedule(events.NewTimerEvent(world.Time()+c.params.GenerationInterval, node.Id(), timer))
	return err
}

func (c *Gossip) knows(node interfaces.INode, id ledger.BlockId) bool {
	return node.Chain().Has(id) || c.buffered[id]
}

func (c *Gossip) HandleMessage(node interfaces.INode, senderId int, msg interfaces.IMessage, world interfaces.IWorld) error {
	switch m := msg.(type) {
	case *NotifyNewBlock:
		if c.knows(node, m.Block) {
			return nil
		}
		return c.requests.Announce(node, m.Block, senderId, world)
	case *GetBlock:
		block, ok := world.Arena().Block(m.Block)
		if !ok || !c.knows(node, m.Block) {
			return nil
		}
		return world.Network().Send(node.Id(), senderId, NewSendBlock(block), world)
	case *SendBlock:
		c.requests.Delivered(node, m.Block.Id(), world)
		return c.receive(node, m.Block, senderId, world)
	}
	return nil
}

func (c *Gossip) receive(node interfaces.INode, block *ledger.Block, from int, world interfaces.IWorld) error {
	if c.knows(node, block.Id()) {
		return nil
	}
	if err := c.ValidateBlock(node, block, world); err != nil {
		world.Logger().Debug().Int("node", node.Id()).Err(err).Msg("dropped invalid block")
		return nil
	}
	chain := node.Chain()
	if !chain.Has(block.Parent()) {
		c.waiting[block.Parent()] = append(c.waiting[block.Parent()], waitingBlock{block, from})
		c.buffered[block.Id()] = true
		if c.requests.Pending(block.Parent()) || c.buffered[block.Parent()] {
			return nil
		}
		return c.requests.Announce(node, block.Parent(), from, world)
	}
	if err := chain.Add(block.Id()); err != nil {
		return eris.Wrapf(interfaces.ErrSimulation, "node %d: %v", node.Id(), err)
	}
	if _, err := c.SelectHead(node, world); err != nil {
		return err
	}
	now := world.Time()
	world.Metrics().Record(metrics.BLOCK_RECEIVED, now, node.Id(), float64(now-block.CreatedAt()))
	if err := world.Network().Broadcast(node.Id(), NewNotifyNewBlock(block.Id(), c.params.Sizes), world, from); err != nil {
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

func (c *Gossip) HandleTimer(node interfaces.INode, timer *interfaces.Timer, world interfaces.IWorld) error {
	switch timer.Kind {
	case interfaces.RETRY_TIMER:
		return c.requests.Retry(node, timer, world)
	case interfaces.GENERATE_TIMER:
		if _, err := c.ProduceBlock(node, world); err != nil {
			return err
		}
		return c.scheduleNext(node, world)
	}
	return nil
}

// SubmitTransaction only keeps the transaction, nothing is ever committed.
func (c *Gossip) SubmitTransaction(node interfaces.INode, tx *ledger.Transaction, world interfaces.IWorld) error {
	node.Mempool().Add(tx.Id())
	return nil
}

func (c *Gossip) ProduceBlock(node interfaces.INode, world interfaces.IWorld) (*ledger.Block, error) {
	now := world.Time()
	block := world.Arena().NewBlock(node.Chain().HeadBlock(), node.Id(), now, nil, c.params.BlockSize, 0, 0)
	if err := node.Chain().Add(block.Id()); err != nil {
		return block, eris.Wrapf(interfaces.ErrSimulation, "node %d: %v", node.Id(), err)
	}
	if _, err := c.SelectHead(node, world); err != nil {
		return block, err
	}
	world.Metrics().Record(metrics.BLOCK_PRODUCED, now, node.Id(), 0)
	world.Audit().Audit(node.Id(), metrics.BLOCK_PRODUCED, blockKey(block.Id()), "", now)
	return block, world.Network().Broadcast(node.Id(), NewNotifyNewBlock(block.Id(), c.params.Sizes), world)
}

func (c *Gossip) ValidateBlock(node interfaces.INode, block *ledger.Block, world interfaces.IWorld) error {
	if block.Producer() != c.params.SourceId {
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d produced by %d", block.Id(), block.Producer())
	}
	return nil
}

// SelectHead is the highest block this node holds, the source never forks.
func (c *Gossip) SelectHead(node interfaces.INode, world interfaces.IWorld) (ledger.BlockId, error) {
	head, _, err := node.Chain().SelectHead()
	if err != nil {
		return head, eris.Wrapf(interfaces.ErrSimulation, "node %d: %v", node.Id(), err)
	}
	return head, nil
}

func (c *Gossip) Finalize(node interfaces.INode, world interfaces.IWorld) error {
	return nil
}
