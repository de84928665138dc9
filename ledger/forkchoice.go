package ledger

type ForkChoice interface {
	// Select returns the head among the blocks known to view, NoBlock if none qualifies.
	Select(view *ChainView) BlockId
	Name() string
}

// LongestChain picks the highest tip, the earliest seen one on ties.
type LongestChain struct{}

func (LongestChain) Name() string {
	return "longest-chain"
}

func (LongestChain) Select(view *ChainView) BlockId {
	best := NoBlock
	bestHeight := -1
	var bestSeen uint64
	for id := range view.tips {
		block, ok := view.arena.Block(id)
		if !ok {
			continue
		}
		seen := view.Seen(id)
		if block.BHeight > bestHeight || (block.BHeight == bestHeight && seen < bestSeen) {
			best, bestHeight, bestSeen = id, block.BHeight, seen
		}
	}
	return best
}

// Ghost walks down from the finalized block, always entering the child with
// the heaviest subtree. Ties go to the earliest seen child.
type Ghost struct{}

func (Ghost) Name() string {
	return "ghost"
}

func (Ghost) Select(view *ChainView) BlockId {
	cur := view.final
	if !view.Has(cur) {
		return NoBlock
	}
	for {
		children := view.known[cur].children
		if len(children) == 0 {
			return cur
		}
		best := children[0]
		for _, child := range children[1:] {
			w, bw := view.Weight(child), view.Weight(best)
			if w > bw || (w == bw && view.Seen(child) < view.Seen(best)) {
				best = child
			}
		}
		cur = best
	}
}

func NewForkChoice(useGhost bool) ForkChoice {
	if useGhost {
		return Ghost{}
	}
	return LongestChain{}
}
