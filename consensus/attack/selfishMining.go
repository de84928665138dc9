package attack

import (
	"consensussim/interfaces"
	"consensussim/ledger"
)

// SelfishMining keeps own blocks private and mines on top of them. Every
// time the public chain grows it publishes just enough to stay ahead.
type SelfishMining struct {
	blocksAhead     []*ledger.Block
	blockHandledNum map[int]bool
}

func NewSelfishMining() *SelfishMining {
	return &SelfishMining{blocksAhead: make([]*ledger.Block, 0), blockHandledNum: make(map[int]bool)}
}

// BlocksAhead returns the ids of the blocks still withheld.
func (s *SelfishMining) BlocksAhead() []ledger.BlockId {
	ids := make([]ledger.BlockId, len(s.blocksAhead))
	for i, block := range s.blocksAhead {
		ids[i] = block.Id()
	}
	return ids
}

func (s *SelfishMining) Withhold(node interfaces.INode, block *ledger.Block) bool {
	if node.Chain().Head() != block.Parent() {
		return false
	}
	// we are selfish, so keep mining on top of it but don't publish it yet
	s.blocksAhead = append(s.blocksAhead, block)
	return true
}

func (s *SelfishMining) Observed(node interfaces.INode, block *ledger.Block) []ledger.BlockId {
	observed := block.Height()
	if s.blockHandledNum[observed] {
		return nil
	}
	s.blockHandledNum[observed] = true
	if len(s.blocksAhead) == 0 {
		// no attack running
		return nil
	}

	chain := node.Chain()
	tip := s.blocksAhead[len(s.blocksAhead)-1]
	if !chain.Arena().IsAncestor(tip.Id(), chain.Head()) {
		// the public chain overtook us
		s.blocksAhead = s.blocksAhead[:0]
		return nil
	}

	head := chain.HeadBlock().Height()
	if head >= observed+2 {
		// at least three ahead, one less now: publish the oldest private block
		first := s.blocksAhead[0]
		s.blocksAhead = s.blocksAhead[1:]
		return []ledger.BlockId{first.Id()}
	}
	// one ahead turns into a race, two ahead into a sure win: publish everything
	release := s.BlocksAhead()
	s.blocksAhead = s.blocksAhead[:0]
	return release
}
