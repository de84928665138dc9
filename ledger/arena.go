package ledger

import (
	"github.com/rotisserie/eris"
)

// Arena owns every block and transaction of one simulation instance.
// Nodes only hold ids into it.
type Arena struct {
	blocks        []*Block
	txs           []*Transaction
	heightReached []int64 // time the first block of each height was created
}

func NewArena(genesisDifficulty uint64) *Arena {
	genesis := &Block{BId: GenesisId, BHeight: 0, BParent: NoBlock, BProducer: -1, BDifficulty: genesisDifficulty}
	return &Arena{blocks: []*Block{genesis}, txs: make([]*Transaction, 0, 1000), heightReached: []int64{0}}
}

func (arena *Arena) Genesis() *Block {
	return arena.blocks[GenesisId]
}

// NewBlock appends a child of parent to the arena.
func (arena *Arena) NewBlock(parent *Block, producerId int, now int64, txs []TxId, size int, difficulty uint64, view int64) *Block {
	blockTxs := make([]TxId, len(txs))
	copy(blockTxs, txs)
	block := &Block{
		BId:         BlockId(len(arena.blocks)),
		BHeight:     parent.BHeight + 1,
		BParent:     parent.BId,
		BProducer:   producerId,
		BSize:       size,
		BCreatedAt:  now,
		BDifficulty: difficulty,
		BView:       view,
		txs:         blockTxs,
	}
	arena.blocks = append(arena.blocks, block)
	if block.BHeight >= len(arena.heightReached) {
		arena.heightReached = append(arena.heightReached, now)
	}
	return block
}

// Sibling creates a conflicting copy of block: same parent, height and payload, different id.
func (arena *Arena) Sibling(block *Block, now int64) (*Block, error) {
	parent, ok := arena.Block(block.BParent)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownBlock, "parent %d of block %d", block.BParent, block.BId)
	}
	sibling := arena.NewBlock(parent, block.BProducer, now, block.txs, block.BSize, block.BDifficulty, block.BView)
	sibling.BForgedFrom = block.BId
	if origin, forged := block.ForgedFrom(); forged {
		sibling.BForgedFrom = origin
	}
	return sibling, nil
}

func (arena *Arena) Block(id BlockId) (*Block, bool) {
	if id < 0 || int(id) >= len(arena.blocks) {
		return nil, false
	}
	return arena.blocks[id], true
}

// Blocks returns all blocks ordered by id. The slice must not be modified.
func (arena *Arena) Blocks() []*Block {
	return arena.blocks
}

func (arena *Arena) NumBlocks() int {
	return len(arena.blocks)
}

func (arena *Arena) NewTransaction(originId int, clientId int, now int64, size int) *Transaction {
	tx := &Transaction{TId: TxId(len(arena.txs)), TOrigin: originId, TClient: clientId, TSubmittedAt: now, TSize: size}
	arena.txs = append(arena.txs, tx)
	return tx
}

func (arena *Arena) Transaction(id TxId) (*Transaction, bool) {
	if id < 0 || int(id) >= len(arena.txs) {
		return nil, false
	}
	return arena.txs[id], true
}

func (arena *Arena) NumTransactions() int {
	return len(arena.txs)
}

// MaxHeight is the greatest height any produced block reached.
func (arena *Arena) MaxHeight() int {
	return len(arena.heightReached) - 1
}

// HeightReachedAt returns when the first block of the given height was created.
func (arena *Arena) HeightReachedAt(height int) (int64, bool) {
	if height < 0 || height >= len(arena.heightReached) {
		return 0, false
	}
	return arena.heightReached[height], true
}

// IsAncestor reports whether ancestor lies on the parent path of id (a block is its own ancestor).
func (arena *Arena) IsAncestor(ancestor BlockId, id BlockId) bool {
	anc, ok := arena.Block(ancestor)
	if !ok {
		return false
	}
	cur, ok := arena.Block(id)
	for ok && cur.BHeight > anc.BHeight {
		cur, ok = arena.Block(cur.BParent)
	}
	return ok && cur.BId == anc.BId
}

// Chain returns the ids from genesis to head.
func (arena *Arena) Chain(head BlockId) []BlockId {
	block, ok := arena.Block(head)
	if !ok {
		return nil
	}
	chain := make([]BlockId, block.BHeight+1)
	for ok {
		chain[block.BHeight] = block.BId
		block, ok = arena.Block(block.BParent)
	}
	return chain
}
