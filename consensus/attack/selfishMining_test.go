package attack

import (
	"testing"

	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/node"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type miner struct {
	arena  *ledger.Arena
	node   *node.Node
	policy *SelfishMining
}

func newMiner() *miner {
	arena := ledger.NewArena(1)
	n := node.NewNode(1, interfaces.MINING_NODE, 1, 1, 0, ledger.NewChainView(arena, ledger.LongestChain{}))
	return &miner{arena: arena, node: n, policy: NewSelfishMining()}
}

// mine produces a private block on the current head.
func (m *miner) mine(t *testing.T) *ledger.Block {
	block := m.arena.NewBlock(m.node.Chain().HeadBlock(), m.node.Id(), 0, nil, 80, 1, 0)
	require.True(t, m.policy.Withhold(m.node, block))
	m.insert(t, block)
	return block
}

func (m *miner) insert(t *testing.T, block *ledger.Block) {
	require.NoError(t, m.node.Chain().Add(block.Id()))
	_, _, err := m.node.Chain().SelectHead()
	require.NoError(t, err)
}

// honest creates a competing public block at the given height.
func (m *miner) honest(t *testing.T, parent ledger.BlockId) *ledger.Block {
	p, ok := m.arena.Block(parent)
	require.True(t, ok)
	return m.arena.NewBlock(p, 0, 0, nil, 80, 1, 0)
}

func TestOneAheadRaces(t *testing.T) {
	m := newMiner()
	a1 := m.mine(t)

	h1 := m.honest(t, ledger.GenesisId)
	assert.Equal(t, []ledger.BlockId{a1.Id()}, m.policy.Observed(m.node, h1))
	assert.Empty(t, m.policy.BlocksAhead())
}

func TestThreeAheadReleasesOneByOne(t *testing.T) {
	m := newMiner()
	a1, a2, a3 := m.mine(t), m.mine(t), m.mine(t)

	h1 := m.honest(t, ledger.GenesisId)
	assert.Equal(t, []ledger.BlockId{a1.Id()}, m.policy.Observed(m.node, h1))
	m.insert(t, h1)

	h2 := m.honest(t, h1.Id())
	assert.Equal(t, []ledger.BlockId{a2.Id(), a3.Id()}, m.policy.Observed(m.node, h2))
	assert.Empty(t, m.policy.BlocksAhead())
}

func TestHeightHandledOnce(t *testing.T) {
	m := newMiner()
	m.mine(t)
	m.mine(t)
	m.mine(t)

	h1 := m.honest(t, ledger.GenesisId)
	require.Len(t, m.policy.Observed(m.node, h1), 1)
	other := m.honest(t, ledger.GenesisId)
	assert.Empty(t, m.policy.Observed(m.node, other))
	assert.Len(t, m.policy.BlocksAhead(), 2)
}

func TestPublishWhenNotOnHead(t *testing.T) {
	m := newMiner()
	h1 := m.honest(t, ledger.GenesisId)
	m.insert(t, h1)

	stale := m.arena.NewBlock(m.arena.Genesis(), m.node.Id(), 0, nil, 80, 1, 0)
	assert.False(t, m.policy.Withhold(m.node, stale))
	assert.Empty(t, m.policy.BlocksAhead())
}
