package consensus

import (
	"sort"

	"consensussim/consensus/difficulty"
	"consensussim/event/events"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/random"

	"github.com/rotisserie/eris"
)

// blockGenerator decides when a node may produce its next block.
type blockGenerator interface {
	Start(node interfaces.INode, world interfaces.IWorld) error
	// Fire handles a generator timer and reports whether the node produces a block now.
	Fire(node interfaces.INode, timer *interfaces.Timer, world interfaces.IWorld) (bool, error)
	// Rearm is called whenever the head may have moved.
	Rearm(node interfaces.INode, world interfaces.IWorld) error
	// Difficulty is the difficulty a child of parent must carry.
	Difficulty(parent *ledger.Block) uint64
	Validate(block *ledger.Block, parent *ledger.Block) error
}

// DifficultyOracle computes child difficulties once per parent for all nodes of an instance.
type DifficultyOracle struct {
	strategy difficulty.Strategy
	arena    *ledger.Arena
	cache    map[ledger.BlockId]uint64
}

func NewDifficultyOracle(strategy difficulty.Strategy, arena *ledger.Arena) *DifficultyOracle {
	return &DifficultyOracle{strategy: strategy, arena: arena, cache: make(map[ledger.BlockId]uint64)}
}

func (o *DifficultyOracle) Next(parent *ledger.Block) uint64 {
	if d, ok := o.cache[parent.Id()]; ok {
		return d
	}
	d := o.strategy.Next(func(n int) []difficulty.Point {
		points := make([]difficulty.Point, 0, n)
		cur, ok := parent, true
		for ok && len(points) < n {
			points = append(points, difficulty.Point{Height: cur.Height(), Time: cur.CreatedAt(), Difficulty: cur.Difficulty()})
			if cur.IsGenesis() {
				break
			}
			cur, ok = o.arena.Block(cur.Parent())
		}
		for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
			points[i], points[j] = points[j], points[i]
		}
		return points
	})
	o.cache[parent.Id()] = d
	return d
}

// powGenerator samples exponential mining delays. The running attempt is
// kept while the difficulty on the head stays the same.
type powGenerator struct {
	oracle     *DifficultyOracle
	hashRate   float64 // difficulty per ms of the whole network
	share      float64
	token      interfaces.Token
	armed      bool
	difficulty uint64
}

func newPowGenerator(oracle *DifficultyOracle, hashRatePerSecond float64, share float64) *powGenerator {
	return &powGenerator{oracle: oracle, hashRate: hashRatePerSecond / 1000, share: share}
}

func (g *powGenerator) Start(node interfaces.INode, world interfaces.IWorld) error {
	return g.schedule(node, world)
}

func (g *powGenerator) schedule(node interfaces.INode, world interfaces.IWorld) error {
	head := node.Chain().HeadBlock()
	g.difficulty = g.Difficulty(head)
	rate := 0.0
	if g.difficulty > 0 {
		rate = g.share * g.hashRate / float64(g.difficulty)
	}
	if rate <= 0 {
		return nil
	}
	delay := world.Rand().TimeBetweenBlocks(rate)
	timer := &interfaces.Timer{Kind: interfaces.MINING_TIMER, Block: head.Id()}
	token, err := world.Schedule(events.NewTimerEvent(world.Time()+delay, node.Id(), timer))
	if err != nil {
		return err
	}
	g.token, g.armed = token, true
	return nil
}

func (g *powGenerator) Fire(node interfaces.INode, timer *interfaces.Timer, world interfaces.IWorld) (bool, error) {
	g.armed = false
	return timer.Kind == interfaces.MINING_TIMER, nil
}

func (g *powGenerator) Rearm(node interfaces.INode, world interfaces.IWorld) error {
	if g.armed {
		if g.Difficulty(node.Chain().HeadBlock()) == g.difficulty {
			return nil
		}
		world.Cancel(g.token)
		g.armed = false
	}
	return g.schedule(node, world)
}

func (g *powGenerator) Difficulty(parent *ledger.Block) uint64 {
	return g.oracle.Next(parent)
}

func (g *powGenerator) Validate(block *ledger.Block, parent *ledger.Block) error {
	if expected := g.Difficulty(parent); block.Difficulty() != expected {
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d has difficulty %d, expected %d", block.Id(), block.Difficulty(), expected)
	}
	return nil
}

// StakeTable picks slot leaders weighted by stake.
type StakeTable struct {
	ids        []int
	cumulative []float64
	seed       uint64
}

// NewStakeTable weighs the given nodes, nodes without stake never lead.
func NewStakeTable(nodes []interfaces.INode, seed uint64) *StakeTable {
	table := &StakeTable{seed: seed}
	total := 0.0
	for _, node := range nodes {
		if node.Stake() <= 0 || node.Role() != interfaces.MINING_NODE {
			continue
		}
		total += node.Stake()
		table.ids = append(table.ids, node.Id())
		table.cumulative = append(table.cumulative, total)
	}
	return table
}

// Leader returns the leader of a slot, -1 if nobody holds stake.
func (t *StakeTable) Leader(slot int64) int {
	if len(t.ids) == 0 {
		return -1
	}
	total := t.cumulative[len(t.cumulative)-1]
	u := random.SlotUniform(t.seed, slot) * total
	i := sort.Search(len(t.cumulative), func(i int) bool { return t.cumulative[i] > u })
	if i == len(t.ids) {
		i--
	}
	return t.ids[i]
}

// slotGenerator lets the slot leader produce exactly at the slot start.
type slotGenerator struct {
	slotLength int64
	leaders    *StakeTable
}

func newSlotGenerator(slotLength int64, leaders *StakeTable) *slotGenerator {
	return &slotGenerator{slotLength: slotLength, leaders: leaders}
}

func (g *slotGenerator) Start(node interfaces.INode, world interfaces.IWorld) error {
	if node.Stake() <= 0 || g.slotLength <= 0 {
		return nil
	}
	return g.next(node, world)
}

func (g *slotGenerator) next(node interfaces.INode, world interfaces.IWorld) error {
	slot := world.Time()/g.slotLength + 1
	timer := &interfaces.Timer{Kind: interfaces.SLOT_TIMER, Round: slot}
	_, err := world.Schedule(events.NewTimerEvent(slot*g.slotLength, node.Id(), timer))
	return err
}

func (g *slotGenerator) Fire(node interfaces.INode, timer *interfaces.Timer, world interfaces.IWorld) (bool, error) {
	if timer.Kind != interfaces.SLOT_TIMER {
		return false, nil
	}
	if err := g.next(node, world); err != nil {
		return false, err
	}
	return g.leaders.Leader(timer.Round) == node.Id(), nil
}

func (g *slotGenerator) Rearm(node interfaces.INode, world interfaces.IWorld) error {
	return nil
}

func (g *slotGenerator) Difficulty(parent *ledger.Block) uint64 {
	return 0
}

func (g *slotGenerator) Validate(block *ledger.Block, parent *ledger.Block) error {
	if block.CreatedAt()%g.slotLength != 0 {
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d was not produced at a slot start", block.Id())
	}
	slot := block.CreatedAt() / g.slotLength
	if leader := g.leaders.Leader(slot); leader != block.Producer() {
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d produced by %d, slot %d belongs to %d", block.Id(), block.Producer(), slot, leader)
	}
	return nil
}
