package ledger

import (
	"github.com/rotisserie/eris"
)

type BlockId int

type TxId int

const (
	NoBlock   BlockId = -1
	GenesisId BlockId = 0
	NoTx      TxId    = -1
)

var (
	ErrUnknownAncestor = eris.New("unknown ancestor")
	ErrPrunedAncestor  = eris.New("pruned ancestor")
	ErrKnownBlock      = eris.New("known block")
	ErrUnknownBlock    = eris.New("unknown block")
	ErrNoHead          = eris.New("fork choice could not resolve a head")
)

// Block is immutable once it was handed out by the Arena.
type Block struct {
	BId         BlockId `json:"i"`
	BHeight     int     `json:"n"`
	BParent     BlockId `json:"p"`
	BProducer   int     `json:"m"`
	BSize       int     `json:"s"`
	BCreatedAt  int64   `json:"t"`
	BDifficulty uint64  `json:"d"`
	BView       int64   `json:"v"`
	BForgedFrom BlockId `json:"f,omitempty"` // set on equivocation copies, never genesis
	txs         []TxId
}

type Transaction struct {
	TId          TxId  `json:"i"`
	TOrigin      int   `json:"o"` // node the transaction was submitted to
	TClient      int   `json:"c"`
	TSubmittedAt int64 `json:"t"`
	TSize        int   `json:"s"`
}

func (block *Block) Id() BlockId {
	return block.BId
}

func (block *Block) Height() int {
	return block.BHeight
}

func (block *Block) Parent() BlockId {
	return block.BParent
}

func (block *Block) Producer() int {
	return block.BProducer
}

func (block *Block) Size() int {
	return block.BSize
}

func (block *Block) CreatedAt() int64 {
	return block.BCreatedAt
}

func (block *Block) Difficulty() uint64 {
	return block.BDifficulty
}

func (block *Block) View() int64 {
	return block.BView
}

// Transactions returns a copy of the included transaction ids.
func (block *Block) Transactions() []TxId {
	txs := make([]TxId, len(block.txs))
	copy(txs, block.txs)
	return txs
}

func (block *Block) TxCount() int {
	return len(block.txs)
}

// ForgedFrom returns the block this one conflicts with when it was created by Arena.Sibling.
func (block *Block) ForgedFrom() (BlockId, bool) {
	return block.BForgedFrom, block.BForgedFrom != GenesisId
}

func (block *Block) IsGenesis() bool {
	return block.BId == GenesisId
}

func (tx *Transaction) Id() TxId {
	return tx.TId
}

func (tx *Transaction) Origin() int {
	return tx.TOrigin
}

func (tx *Transaction) Client() int {
	return tx.TClient
}

func (tx *Transaction) SubmittedAt() int64 {
	return tx.TSubmittedAt
}

func (tx *Transaction) Size() int {
	return tx.TSize
}
