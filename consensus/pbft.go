package consensus

import (
	"sort"

	"consensussim/event/events"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/file"
	"consensussim/util/metrics"

	"github.com/rotisserie/eris"
)

type PbftParams struct {
	MaxBlockSize     int
	MaxBlockInterval int64 // ms
	RoundTimeout     int64 // ms
	Replicas         []int // ascending
	Sizes            file.SizesConfig
}

// Quorum is the number of matching votes needed out of n replicas.
func Quorum(n int) int {
	return 2*n/3 + 1
}

type roundKey struct {
	view   int64
	height int
}

type round struct {
	block    ledger.BlockId // accepted proposal
	prepares map[int]ledger.BlockId
	commits  map[int]ledger.BlockId
	prepared bool
}

type bufferedMessage struct {
	from int
	msg  interfaces.IMessage
}

type pendingTimer struct {
	token interfaces.Token
	armed bool
}

func (t *pendingTimer) cancel(world interfaces.IWorld) {
	if t.armed {
		world.Cancel(t.token)
		t.armed = false
	}
}

// Pbft runs one replica. Heights are decided one after the other, each
// through pre-prepare, prepare and commit in the current view. A replica
// that waits longer than the round timeout votes for the next view.
type Pbft struct {
	params      PbftParams
	quorum      int
	view        int64
	target      int64 // view voted for while changing
	changing    bool
	height      int // next height to decide
	rounds      map[roundKey]*round
	buffer      []bufferedMessage
	locked      map[int]PreparedCert
	viewChanges map[int64]map[int]*ViewChange
	newViewSent map[int64]bool

	decided      map[int]ledger.BlockId
	decidedView  map[int]int64
	certificates map[int][]int
	caughtUp     map[int]int // replica -> highest height answered

	lastDecision int64
	attempts     int
	roundTimer   pendingTimer
	proposeTimer pendingTimer
}

func newPbft(params PbftParams) *Pbft {
	return &Pbft{
		params:       params,
		quorum:       Quorum(len(params.Replicas)),
		height:       1,
		rounds:       make(map[roundKey]*round),
		locked:       make(map[int]PreparedCert),
		viewChanges:  make(map[int64]map[int]*ViewChange),
		newViewSent:  make(map[int64]bool),
		decided:      make(map[int]ledger.BlockId),
		decidedView:  make(map[int]int64),
		certificates: make(map[int][]int),
		caughtUp:     make(map[int]int),
	}
}

func (c *Pbft) View() int64 {
	return c.view
}

// Height is the next height the replica waits for.
func (c *Pbft) Height() int {
	return c.height
}

// Decided returns the block decided at height.
func (c *Pbft) Decided(height int) (ledger.BlockId, bool) {
	id, ok := c.decided[height]
	return id, ok
}

// Certificate returns the replicas whose commit votes decided height.
func (c *Pbft) Certificate(height int) []int {
	return c.certificates[height]
}

func (c *Pbft) leader(view int64) int {
	return c.params.Replicas[int(view%int64(len(c.params.Replicas)))]
}

func (c *Pbft) isReplica(id int) bool {
	i := sort.SearchInts(c.params.Replicas, id)
	return i < len(c.params.Replicas) && c.params.Replicas[i] == id
}

func (c *Pbft) round(view int64, height int) *round {
	key := roundKey{view, height}
	r, ok := c.rounds[key]
	if !ok {
		r = &round{block: ledger.NoBlock, prepares: make(map[int]ledger.BlockId), commits: make(map[int]ledger.BlockId)}
		c.rounds[key] = r
	}
	return r
}

func (c *Pbft) Init(node interfaces.INode, world interfaces.IWorld) error {
	if !c.isReplica(node.Id()) {
		return nil
	}
	return c.maybePropose(node, world)
}

func (c *Pbft) SubmitTransaction(node interfaces.INode, tx *ledger.Transaction, world interfaces.IWorld) error {
	node.Mempool().Add(tx.Id())
	msg := NewSendTransaction(tx)
	node.MarkSeen(msg.Key())
	if err := world.Network().Broadcast(node.Id(), msg, world); err != nil {
		return err
	}
	return c.onTransaction(node, world)
}

func (c *Pbft) onTransaction(node interfaces.INode, world interfaces.IWorld) error {
	if !c.isReplica(node.Id()) {
		return nil
	}
	if err := c.armRound(node, world); err != nil {
		return err
	}
	return c.maybePropose(node, world)
}

func (c *Pbft) HandleMessage(node interfaces.INode, senderId int, msg interfaces.IMessage, world interfaces.IWorld) error {
	if m, ok := msg.(*SendTransaction); ok {
		if !node.Mempool().Add(m.Tx) {
			return nil
		}
		return c.onTransaction(node, world)
	}
	return c.dispatch(node, senderId, msg, world)
}

// observe lets a node without a vote follow the decisions through the commit votes it hears.
func (c *Pbft) observe(node interfaces.INode, from int, m *Vote, world interfaces.IWorld) error {
	if m.Kind != COMMIT_VOTE || m.Height < c.height {
		return nil
	}
	if m.Height > c.height {
		c.buffer = append(c.buffer, bufferedMessage{from, m})
		return nil
	}
	return c.onVote(node, m, world)
}

func (c *Pbft) dispatch(node interfaces.INode, from int, msg interfaces.IMessage, world interfaces.IWorld) error {
	if !c.isReplica(node.Id()) {
		if m, ok := msg.(*Vote); ok {
			return c.observe(node, from, m, world)
		}
		return nil
	}
	switch m := msg.(type) {
	case *PrePrepare:
		if ok, err := c.admit(node, from, m.View, m.Height, msg, false, world); !ok {
			return err
		}
		return c.onPrePrepare(node, m, world)
	case *Vote:
		if ok, err := c.admit(node, from, m.View, m.Height, msg, m.Kind == COMMIT_VOTE, world); !ok {
			return err
		}
		return c.onVote(node, m, world)
	case *ViewChange:
		return c.onViewChange(node, m, world)
	case *NewView:
		return c.onNewView(node, m, world)
	}
	return nil
}

// admit sorts a round message into process now, buffer for later or drop.
// Commit votes of an earlier view still count, a commit quorum is final in any view.
func (c *Pbft) admit(node interfaces.INode, from int, view int64, height int, msg interfaces.IMessage, commit bool, world interfaces.IWorld) (bool, error) {
	switch {
	case height < c.height:
		if commit {
			return false, nil
		}
		return false, c.catchUp(node, from, height, world)
	case height > c.height || view > c.view:
		c.buffer = append(c.buffer, bufferedMessage{from, msg})
		return false, nil
	case commit:
		return true, nil
	case view < c.view || c.changing:
		return false, nil
	}
	return true, nil
}

// catchUp hands a lagging replica our commit vote for a height it still works on.
func (c *Pbft) catchUp(node interfaces.INode, to int, height int, world interfaces.IWorld) error {
	block, ok := c.decided[height]
	if !ok || to == node.Id() || !node.HasPeer(to) || c.caughtUp[to] >= height {
		return nil
	}
	c.caughtUp[to] = height
	vote := &Vote{Kind: COMMIT_VOTE, View: c.decidedView[height], Height: height, Block: block, Replica: node.Id(), size: c.params.Sizes.Vote}
	return world.Network().Send(node.Id(), to, vote, world)
}

func (c *Pbft) replay(node interfaces.INode, world interfaces.IWorld) error {
	pending := c.buffer
	c.buffer = nil
	for _, b := range pending {
		if err := c.dispatch(node, b.from, b.msg, world); err != nil {
			return err
		}
	}
	return nil
}

func (c *Pbft) maybePropose(node interfaces.INode, world interfaces.IWorld) error {
	if c.changing || c.leader(c.view) != node.Id() {
		return nil
	}
	if c.round(c.view, c.height).block != ledger.NoBlock {
		return nil
	}
	if cert, ok := c.locked[c.height]; ok {
		return c.propose(node, cert.Block, world)
	}
	pending := node.Mempool().Len()
	if pending == 0 {
		return nil
	}
	due := c.lastDecision + c.params.MaxBlockInterval
	if pending < c.params.MaxBlockSize && world.Time() < due {
		if c.proposeTimer.armed {
			return nil
		}
		timer := &interfaces.Timer{Kind: interfaces.PROPOSE_TIMER, View: c.view, Height: c.height}
		token, err := world.Schedule(events.NewTimerEvent(due, node.Id(), timer))
		if err != nil {
			return err
		}
		c.proposeTimer = pendingTimer{token, true}
		return nil
	}
	_, err := c.ProduceBlock(node, world)
	return err
}

// ProduceBlock builds the proposal for the current height and sends it.
func (c *Pbft) ProduceBlock(node interfaces.INode, world interfaces.IWorld) (*ledger.Block, error) {
	now := world.Time()
	parent := node.Chain().HeadBlock()
	txs := node.Mempool().Take(c.params.MaxBlockSize, nil)
	block := world.Arena().NewBlock(parent, node.Id(), now, txs, BlockSize(c.params.Sizes, len(txs)), 0, c.view)
	world.Metrics().Record(metrics.BLOCK_PRODUCED, now, node.Id(), float64(len(txs)))
	world.Audit().Audit(node.Id(), metrics.BLOCK_PRODUCED, blockKey(block.Id()), "", now)
	return block, c.propose(node, block.Id(), world)
}

func (c *Pbft) propose(node interfaces.INode, id ledger.BlockId, world interfaces.IWorld) error {
	c.proposeTimer.cancel(world)
	block, ok := world.Arena().Block(id)
	if !ok {
		return eris.Wrapf(interfaces.ErrSimulation, "proposal of unknown block %d", id)
	}
	msg := &PrePrepare{View: c.view, Height: c.height, Block: id, Leader: node.Id(), size: block.Size()}
	node.MarkSeen(msg.Key())
	if err := world.Network().Broadcast(node.Id(), msg, world); err != nil {
		return err
	}
	return c.onPrePrepare(node, msg, world)
}

func (c *Pbft) onPrePrepare(node interfaces.INode, m *PrePrepare, world interfaces.IWorld) error {
	r := c.round(m.View, m.Height)
	if r.block != ledger.NoBlock || m.Leader != c.leader(m.View) {
		return nil
	}
	block, ok := world.Arena().Block(m.Block)
	if !ok {
		return nil
	}
	if err := c.ValidateBlock(node, block, world); err != nil {
		world.Audit().Audit(node.Id(), m.Type(), m.Id(), err.Error(), world.Time())
		return nil
	}
	if cert, ok := c.locked[m.Height]; ok && cert.Block != m.Block {
		world.Audit().Audit(node.Id(), m.Type(), m.Id(), "locked on another block", world.Time())
		return nil
	}
	r.block = m.Block
	r.prepares[m.Leader] = m.Block
	if err := c.armRound(node, world); err != nil {
		return err
	}
	if node.Id() != m.Leader {
		r.prepares[node.Id()] = m.Block
		if err := c.vote(node, PREPARE_VOTE, m.View, m.Height, m.Block, world); err != nil {
			return err
		}
	}
	return c.progress(node, m.View, m.Height, world)
}

func (c *Pbft) vote(node interfaces.INode, kind voteKind, view int64, height int, block ledger.BlockId, world interfaces.IWorld) error {
	msg := &Vote{Kind: kind, View: view, Height: height, Block: block, Replica: node.Id(), size: c.params.Sizes.Vote}
	node.MarkSeen(msg.Key())
	return world.Network().Broadcast(node.Id(), msg, world)
}

func (c *Pbft) onVote(node interfaces.INode, m *Vote, world interfaces.IWorld) error {
	if !c.isReplica(m.Replica) {
		return nil
	}
	r := c.round(m.View, m.Height)
	votes := r.prepares
	if m.Kind == COMMIT_VOTE {
		votes = r.commits
	}
	if _, voted := votes[m.Replica]; voted {
		return nil
	}
	votes[m.Replica] = m.Block
	return c.progress(node, m.View, m.Height, world)
}

func (c *Pbft) progress(node interfaces.INode, view int64, height int, world interfaces.IWorld) error {
	r := c.round(view, height)
	if r.block != ledger.NoBlock && !r.prepared && count(r.prepares, r.block) >= c.quorum {
		r.prepared = true
		c.lock(PreparedCert{View: view, Height: height, Block: r.block})
		r.commits[node.Id()] = r.block
		if err := c.vote(node, COMMIT_VOTE, view, height, r.block, world); err != nil {
			return err
		}
	}
	if height != c.height {
		return nil
	}
	if block, ok := quorumBlock(r.commits, c.quorum); ok {
		return c.decide(node, view, height, block, voters(r.commits, block), world)
	}
	return nil
}

func (c *Pbft) lock(cert PreparedCert) {
	if old, ok := c.locked[cert.Height]; ok && old.View >= cert.View {
		return
	}
	c.locked[cert.Height] = cert
}

func (c *Pbft) decide(node interfaces.INode, view int64, height int, id ledger.BlockId, certificate []int, world interfaces.IWorld) error {
	block, ok := world.Arena().Block(id)
	if !ok {
		return eris.Wrapf(interfaces.ErrSimulation, "decided unknown block %d", id)
	}
	chain := node.Chain()
	if !chain.Has(id) {
		if err := chain.Add(id); err != nil {
			return eris.Wrapf(interfaces.ErrSimulation, "node %d height %d: %v", node.Id(), height, err)
		}
	}
	if _, err := chain.FinalizeTo(id); err != nil {
		return eris.Wrapf(interfaces.ErrSimulation, "node %d height %d: %v", node.Id(), height, err)
	}
	c.decided[height] = id
	c.decidedView[height] = view
	c.certificates[height] = certificate
	node.Mempool().Remove(block.Transactions()...)
	if err := world.CommitBlock(node.Id(), id); err != nil {
		return err
	}

	c.height++
	c.lastDecision = world.Time()
	c.attempts = 0
	delete(c.locked, height)
	for key := range c.rounds {
		if key.height <= height {
			delete(c.rounds, key)
		}
	}
	c.roundTimer.cancel(world)
	c.proposeTimer.cancel(world)
	if node.Mempool().Len() > 0 {
		if err := c.armRound(node, world); err != nil {
			return err
		}
	}
	if err := c.replay(node, world); err != nil {
		return err
	}
	return c.maybePropose(node, world)
}

func (c *Pbft) armRound(node interfaces.INode, world interfaces.IWorld) error {
	if c.roundTimer.armed || !c.isReplica(node.Id()) {
		return nil
	}
	waitFor := c.view
	if c.changing {
		waitFor = c.target
	}
	backoff := c.attempts
	if backoff > 6 {
		backoff = 6
	}
	timeout := c.params.MaxBlockInterval + c.params.RoundTimeout<<uint(backoff)
	timer := &interfaces.Timer{Kind: interfaces.ROUND_TIMER, View: waitFor, Height: c.height}
	token, err := world.Schedule(events.NewTimerEvent(world.Time()+timeout, node.Id(), timer))
	if err != nil {
		return err
	}
	c.roundTimer = pendingTimer{token, true}
	return nil
}

func (c *Pbft) HandleTimer(node interfaces.INode, timer *interfaces.Timer, world interfaces.IWorld) error {
	switch timer.Kind {
	case interfaces.PROPOSE_TIMER:
		c.proposeTimer.armed = false
		if timer.View == c.view && timer.Height == c.height {
			return c.maybePropose(node, world)
		}
	case interfaces.ROUND_TIMER:
		c.roundTimer.armed = false
		if timer.Height != c.height {
			return nil
		}
		if c.changing {
			if timer.View == c.target {
				return c.startViewChange(node, c.target+1, world)
			}
			return nil
		}
		if timer.View != c.view {
			return nil
		}
		if node.Mempool().Len() == 0 && c.round(c.view, c.height).block == ledger.NoBlock {
			return nil
		}
		return c.startViewChange(node, c.view+1, world)
	}
	return nil
}

func (c *Pbft) startViewChange(node interfaces.INode, newView int64, world interfaces.IWorld) error {
	if newView <= c.view || (c.changing && newView <= c.target) {
		return nil
	}
	c.changing = true
	c.target = newView
	c.attempts++
	c.proposeTimer.cancel(world)
	c.roundTimer.cancel(world)
	world.Metrics().Record(metrics.VIEW_CHANGE, world.Time(), node.Id(), float64(newView))

	prepared := make([]PreparedCert, 0, len(c.locked))
	for _, cert := range c.locked {
		prepared = append(prepared, cert)
	}
	sort.Slice(prepared, func(i, j int) bool { return prepared[i].Height < prepared[j].Height })
	msg := &ViewChange{NewView: newView, Height: c.height, Replica: node.Id(), Prepared: prepared, size: c.params.Sizes.Vote * (1 + len(prepared))}
	node.MarkSeen(msg.Key())
	if err := world.Network().Broadcast(node.Id(), msg, world); err != nil {
		return err
	}
	if err := c.armRound(node, world); err != nil {
		return err
	}
	return c.onViewChange(node, msg, world)
}

func (c *Pbft) onViewChange(node interfaces.INode, m *ViewChange, world interfaces.IWorld) error {
	if m.NewView <= c.view || !c.isReplica(m.Replica) {
		return nil
	}
	set, ok := c.viewChanges[m.NewView]
	if !ok {
		set = make(map[int]*ViewChange)
		c.viewChanges[m.NewView] = set
	}
	if _, dup := set[m.Replica]; dup {
		return nil
	}
	set[m.Replica] = m

	// f+1 replicas cannot all be faulty, so join them
	faulty := len(c.params.Replicas) - c.quorum
	if (!c.changing || c.target < m.NewView) && len(set) > faulty {
		return c.startViewChange(node, m.NewView, world)
	}
	if c.changing && c.target == m.NewView && len(set) >= c.quorum && c.leader(m.NewView) == node.Id() && !c.newViewSent[m.NewView] {
		return c.announceNewView(node, m.NewView, set, world)
	}
	return nil
}

func (c *Pbft) announceNewView(node interfaces.INode, view int64, set map[int]*ViewChange, world interfaces.IWorld) error {
	c.newViewSent[view] = true
	carried := PreparedCert{Block: ledger.NoBlock, Height: c.height, View: -1}
	for _, vc := range set {
		for _, cert := range vc.Prepared {
			if cert.Height != c.height {
				continue
			}
			if cert.View > carried.View || (cert.View == carried.View && cert.Block < carried.Block) {
				carried = cert
			}
		}
	}
	msg := &NewView{View: view, Height: c.height, Leader: node.Id(), Carried: carried, size: c.params.Sizes.Vote * len(set)}
	node.MarkSeen(msg.Key())
	if err := world.Network().Broadcast(node.Id(), msg, world); err != nil {
		return err
	}
	return c.onNewView(node, msg, world)
}

func (c *Pbft) onNewView(node interfaces.INode, m *NewView, world interfaces.IWorld) error {
	if m.View <= c.view || m.Leader != c.leader(m.View) {
		return nil
	}
	c.view = m.View
	c.target = m.View
	c.changing = false
	for view := range c.viewChanges {
		if view <= c.view {
			delete(c.viewChanges, view)
		}
	}
	if m.Carried.Block != ledger.NoBlock && m.Carried.Height == c.height {
		c.lock(m.Carried)
	}
	world.Audit().Audit(node.Id(), m.Type(), m.Id(), "entered view", world.Time())
	c.roundTimer.cancel(world)
	if node.Mempool().Len() > 0 || m.Carried.Block != ledger.NoBlock {
		if err := c.armRound(node, world); err != nil {
			return err
		}
	}
	if err := c.replay(node, world); err != nil {
		return err
	}
	return c.maybePropose(node, world)
}

func (c *Pbft) ValidateBlock(node interfaces.INode, block *ledger.Block, world interfaces.IWorld) error {
	switch {
	case block.Parent() != node.Chain().Head():
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d does not extend the last decided block", block.Id())
	case block.Height() != c.height:
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d at height %d, expected %d", block.Id(), block.Height(), c.height)
	case block.TxCount() > c.params.MaxBlockSize:
		return eris.Wrapf(interfaces.ErrInvalidBlock, "block %d holds %d transactions", block.Id(), block.TxCount())
	case block.CreatedAt() > world.Time():
		return eris.Wrapf(interfaces.ErrFutureBlock, "block %d", block.Id())
	}
	return nil
}

// SelectHead is the last decided block, there are no forks to choose from.
func (c *Pbft) SelectHead(node interfaces.INode, world interfaces.IWorld) (ledger.BlockId, error) {
	return node.Chain().Head(), nil
}

// Finalize has nothing left to do, decisions are final when they happen.
func (c *Pbft) Finalize(node interfaces.INode, world interfaces.IWorld) error {
	return nil
}

func count(votes map[int]ledger.BlockId, block ledger.BlockId) int {
	n := 0
	for _, b := range votes {
		if b == block {
			n++
		}
	}
	return n
}

func quorumBlock(votes map[int]ledger.BlockId, quorum int) (ledger.BlockId, bool) {
	counts := make(map[ledger.BlockId]int)
	for _, b := range votes {
		if b == ledger.NoBlock {
			continue
		}
		counts[b]++
		if counts[b] >= quorum {
			return b, true
		}
	}
	return ledger.NoBlock, false
}

func voters(votes map[int]ledger.BlockId, block ledger.BlockId) []int {
	ids := make([]int, 0, len(votes))
	for id, b := range votes {
		if b == block {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
