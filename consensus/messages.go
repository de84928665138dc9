package consensus

import (
	"fmt"

	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/file"
)

// NotifyNewBlock announces a block by id.
type NotifyNewBlock struct {
	Block ledger.BlockId
	size  int
}

func NewNotifyNewBlock(block ledger.BlockId, sizes file.SizesConfig) *NotifyNewBlock {
	return &NotifyNewBlock{Block: block, size: sizes.Hash}
}

func (m *NotifyNewBlock) Type() interfaces.IMessageType {
	return interfaces.NOTIFY_NEW_BLOCK_MESSAGE
}

func (m *NotifyNewBlock) Size() int {
	return m.size
}

func (m *NotifyNewBlock) Id() string {
	return fmt.Sprintf("b%d", m.Block)
}

// Equivocate announces a freshly created sibling instead of the block.
func (m *NotifyNewBlock) Equivocate(senderId int, world interfaces.IWorld) interfaces.IMessage {
	block, ok := world.Arena().Block(m.Block)
	if !ok || block.IsGenesis() || block.Producer() != senderId {
		return m
	}
	sibling, err := world.Arena().Sibling(block, world.Time())
	if err != nil {
		return m
	}
	return &NotifyNewBlock{Block: sibling.Id(), size: m.size}
}

type GetBlock struct {
	Block ledger.BlockId
	size  int
}

func NewGetBlock(block ledger.BlockId, sizes file.SizesConfig) *GetBlock {
	return &GetBlock{Block: block, size: sizes.Hash}
}

func (m *GetBlock) Type() interfaces.IMessageType {
	return interfaces.GET_BLOCK_MESSAGE
}

func (m *GetBlock) Size() int {
	return m.size
}

func (m *GetBlock) Id() string {
	return fmt.Sprintf("b%d", m.Block)
}

// SendBlock carries a whole block, its size grows with the transactions.
type SendBlock struct {
	Block *ledger.Block
}

func NewSendBlock(block *ledger.Block) *SendBlock {
	return &SendBlock{Block: block}
}

func (m *SendBlock) Type() interfaces.IMessageType {
	return interfaces.SEND_BLOCK_MESSAGE
}

func (m *SendBlock) Size() int {
	return m.Block.Size()
}

func (m *SendBlock) Id() string {
	return fmt.Sprintf("b%d", m.Block.Id())
}

// BlockSize is the wire size of a block with txCount transactions.
func BlockSize(sizes file.SizesConfig, txCount int) int {
	return sizes.Header + sizes.Transaction*txCount
}

type SendTransaction struct {
	Tx   ledger.TxId
	size int
}

func NewSendTransaction(tx *ledger.Transaction) *SendTransaction {
	return &SendTransaction{Tx: tx.Id(), size: tx.Size()}
}

func (m *SendTransaction) Type() interfaces.IMessageType {
	return interfaces.SEND_TX_MESSAGE
}

func (m *SendTransaction) Size() int {
	return m.size
}

func (m *SendTransaction) Id() string {
	return fmt.Sprintf("t%d", m.Tx)
}

func (m *SendTransaction) Key() string {
	return "tx:" + m.Id()
}

// PrePrepare is the leader's proposal for one height in one view.
type PrePrepare struct {
	View   int64
	Height int
	Block  ledger.BlockId
	Leader int
	size   int
}

func (m *PrePrepare) Type() interfaces.IMessageType {
	return interfaces.PRE_PREPARE_MESSAGE
}

func (m *PrePrepare) Size() int {
	return m.size
}

func (m *PrePrepare) Id() string {
	return fmt.Sprintf("v%d/h%d/b%d", m.View, m.Height, m.Block)
}

func (m *PrePrepare) Key() string {
	return "pp:" + m.Id()
}

// Equivocate proposes a sibling of the block with the same payload.
func (m *PrePrepare) Equivocate(senderId int, world interfaces.IWorld) interfaces.IMessage {
	block, ok := world.Arena().Block(m.Block)
	if !ok || m.Leader != senderId {
		return m
	}
	sibling, err := world.Arena().Sibling(block, world.Time())
	if err != nil {
		return m
	}
	out := *m
	out.Block = sibling.Id()
	return &out
}

type voteKind string

const (
	PREPARE_VOTE = voteKind("prepare")
	COMMIT_VOTE  = voteKind("commit")
)

// Vote is a prepare or commit vote of one replica.
type Vote struct {
	Kind    voteKind
	View    int64
	Height  int
	Block   ledger.BlockId
	Replica int
	size    int
}

func (m *Vote) Type() interfaces.IMessageType {
	if m.Kind == COMMIT_VOTE {
		return interfaces.COMMIT_MESSAGE
	}
	return interfaces.PREPARE_MESSAGE
}

func (m *Vote) Size() int {
	return m.size
}

func (m *Vote) Id() string {
	return fmt.Sprintf("v%d/h%d/b%d/r%d", m.View, m.Height, m.Block, m.Replica)
}

func (m *Vote) Key() string {
	return string(m.Kind) + ":" + m.Id()
}

// Equivocate votes for no block, which never matches a proposal.
func (m *Vote) Equivocate(senderId int, world interfaces.IWorld) interfaces.IMessage {
	if m.Replica != senderId {
		return m
	}
	out := *m
	out.Block = ledger.NoBlock
	return &out
}

// PreparedCert proves that a replica saw a prepare quorum for a block.
type PreparedCert struct {
	View   int64
	Height int
	Block  ledger.BlockId
}

type ViewChange struct {
	NewView  int64
	Height   int // next height the replica waits for
	Replica  int
	Prepared []PreparedCert
	size     int
}

func (m *ViewChange) Type() interfaces.IMessageType {
	return interfaces.VIEW_CHANGE_MESSAGE
}

func (m *ViewChange) Size() int {
	return m.size
}

func (m *ViewChange) Id() string {
	return fmt.Sprintf("v%d/r%d", m.NewView, m.Replica)
}

func (m *ViewChange) Key() string {
	return "vc:" + m.Id()
}

// NewView starts a view, carrying the highest prepared block the new
// leader learned from the view changes.
type NewView struct {
	View    int64
	Height  int
	Leader  int
	Carried PreparedCert
	size    int
}

func (m *NewView) Type() interfaces.IMessageType {
	return interfaces.NEW_VIEW_MESSAGE
}

func (m *NewView) Size() int {
	return m.size
}

func (m *NewView) Id() string {
	return fmt.Sprintf("v%d/h%d", m.View, m.Height)
}

func (m *NewView) Key() string {
	return "nv:" + m.Id()
}
