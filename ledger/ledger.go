package ledger

import (
	"sort"

	"github.com/rotisserie/eris"
)

type viewEntry struct {
	seen     uint64
	weight   int // number of known blocks in the subtree rooted here, including itself
	children []BlockId
}

// ChainView is one node's local view of the block tree: the ids it knows,
// its head as chosen by the fork-choice rule and its finalized prefix.
type ChainView struct {
	arena     *Arena
	rule      ForkChoice
	known     map[BlockId]*viewEntry
	tips      map[BlockId]bool
	seenCount uint64
	head      BlockId
	final     BlockId
}

func NewChainView(arena *Arena, rule ForkChoice) *ChainView {
	view := &ChainView{arena: arena, rule: rule, known: make(map[BlockId]*viewEntry), tips: make(map[BlockId]bool), head: GenesisId, final: GenesisId}
	view.known[GenesisId] = &viewEntry{seen: 0, weight: 1}
	view.tips[GenesisId] = true
	return view
}

func (view *ChainView) Arena() *Arena {
	return view.arena
}

func (view *ChainView) Rule() ForkChoice {
	return view.rule
}

func (view *ChainView) Has(id BlockId) bool {
	_, ok := view.known[id]
	return ok
}

func (view *ChainView) Len() int {
	return len(view.known)
}

// Add inserts a block whose parent is already known.
func (view *ChainView) Add(id BlockId) error {
	if view.Has(id) {
		return eris.Wrapf(ErrKnownBlock, "block %d", id)
	}
	block, ok := view.arena.Block(id)
	if !ok {
		return eris.Wrapf(ErrUnknownBlock, "block %d", id)
	}
	if !view.arena.IsAncestor(view.final, block.BParent) {
		return eris.Wrapf(ErrPrunedAncestor, "block %d does not extend finalized block %d", id, view.final)
	}
	parent, ok := view.known[block.BParent]
	if !ok {
		return eris.Wrapf(ErrUnknownAncestor, "block %d misses parent %d", id, block.BParent)
	}
	view.seenCount++
	view.known[id] = &viewEntry{seen: view.seenCount, weight: 1}
	parent.children = append(parent.children, id)
	delete(view.tips, block.BParent)
	view.tips[id] = true

	// weights only matter above the finalized block
	cur := block
	for cur.BId != view.final {
		cur, ok = view.arena.Block(cur.BParent)
		if !ok {
			break
		}
		entry, known := view.known[cur.BId]
		if !known {
			break
		}
		entry.weight++
	}
	return nil
}

func (view *ChainView) Head() BlockId {
	return view.head
}

func (view *ChainView) HeadBlock() *Block {
	block, _ := view.arena.Block(view.head)
	return block
}

// SelectHead re-evaluates the fork-choice rule and reports whether the head moved.
func (view *ChainView) SelectHead() (BlockId, bool, error) {
	head := view.rule.Select(view)
	if head == NoBlock || !view.Has(head) {
		return view.head, false, eris.Wrapf(ErrNoHead, "rule %v", view.rule.Name())
	}
	changed := head != view.head
	view.head = head
	return head, changed, nil
}

func (view *ChainView) Finalized() BlockId {
	return view.final
}

func (view *ChainView) FinalizedHeight() int {
	block, _ := view.arena.Block(view.final)
	return block.BHeight
}

// Finalize moves the finalized pointer to the head-chain block that has
// depth confirming descendants and returns the newly finalized ids in
// ascending height.
func (view *ChainView) Finalize(depth int) []BlockId {
	headBlock := view.HeadBlock()
	target := headBlock.BHeight - depth
	if target <= view.FinalizedHeight() {
		return nil
	}
	cur := headBlock
	for cur.BHeight > target {
		cur, _ = view.arena.Block(cur.BParent)
	}
	return view.finalizeTo(cur)
}

// FinalizeTo finalizes a known block and makes it the head, used by protocols with immediate finality.
func (view *ChainView) FinalizeTo(id BlockId) ([]BlockId, error) {
	block, ok := view.arena.Block(id)
	if !ok || !view.Has(id) {
		return nil, eris.Wrapf(ErrUnknownBlock, "block %d", id)
	}
	if !view.arena.IsAncestor(view.final, id) {
		return nil, eris.Wrapf(ErrPrunedAncestor, "block %d does not extend finalized block %d", id, view.final)
	}
	finalized := view.finalizeTo(block)
	if !view.arena.IsAncestor(id, view.head) {
		view.head = id
	}
	return finalized, nil
}

func (view *ChainView) finalizeTo(block *Block) []BlockId {
	finalized := make([]BlockId, 0, block.BHeight-view.FinalizedHeight())
	cur := block
	for cur.BId != view.final {
		finalized = append(finalized, cur.BId)
		cur, _ = view.arena.Block(cur.BParent)
	}
	for i, j := 0, len(finalized)-1; i < j; i, j = i+1, j-1 {
		finalized[i], finalized[j] = finalized[j], finalized[i]
	}
	view.final = block.BId
	return finalized
}

// Prune drops every known block that does not descend from the finalized
// block. Those branches can never become canonical again.
func (view *ChainView) Prune() int {
	keep := make(map[BlockId]bool, len(view.known))
	stack := []BlockId{view.final}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		keep[id] = true
		stack = append(stack, view.known[id].children...)
	}
	removed := 0
	for id := range view.known {
		if !keep[id] {
			delete(view.known, id)
			delete(view.tips, id)
			removed++
		}
	}
	return removed
}

// Tips returns the leaves of the known tree in ascending id order.
func (view *ChainView) Tips() []BlockId {
	tips := make([]BlockId, 0, len(view.tips))
	for id := range view.tips {
		tips = append(tips, id)
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i] < tips[j] })
	return tips
}

// Children returns the known children of id in the order they were seen.
func (view *ChainView) Children(id BlockId) []BlockId {
	entry, ok := view.known[id]
	if !ok {
		return nil
	}
	children := make([]BlockId, len(entry.children))
	copy(children, entry.children)
	return children
}

func (view *ChainView) Weight(id BlockId) int {
	if entry, ok := view.known[id]; ok {
		return entry.weight
	}
	return 0
}

// Seen returns the local arrival order of a block, lower means earlier.
func (view *ChainView) Seen(id BlockId) uint64 {
	if entry, ok := view.known[id]; ok {
		return entry.seen
	}
	return 0
}

// HeadChain returns the ids from the finalized block (exclusive) up to the head.
func (view *ChainView) HeadChain() []BlockId {
	ids := make([]BlockId, 0)
	cur := view.HeadBlock()
	for cur.BId != view.final {
		ids = append(ids, cur.BId)
		parent, ok := view.arena.Block(cur.BParent)
		if !ok {
			break
		}
		cur = parent
	}
	return ids
}
