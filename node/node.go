package node

import (
	"sort"

	"consensussim/interfaces"
	"consensussim/ledger"
)

type Node struct {
	NId          int                     `json:"i"`
	NRole        interfaces.INodeRole    `json:"r"`
	NHashPower   float64                 `json:"p"`
	NStake       float64                 `json:"s"`
	NBandwidth   float64                 `json:"b"`
	NIsOnline    bool                    `json:"o"`
	NFaultPolicy interfaces.IFaultPolicy `json:"f"`
	peers        []int
	chain        *ledger.ChainView
	mempool      *ledger.Mempool
	protocol     interfaces.IProtocol
	seen         map[string]struct{}
}

// NewNode creates an online, correct node. bandwidth is in bits per second, 0 is unlimited.
func NewNode(id int, role interfaces.INodeRole, hashPower float64, stake float64, bandwidth float64, chain *ledger.ChainView) *Node {
	return &Node{
		NId:          id,
		NRole:        role,
		NHashPower:   hashPower,
		NStake:       stake,
		NBandwidth:   bandwidth,
		NIsOnline:    true,
		NFaultPolicy: interfaces.FAULT_NONE,
		peers:        make([]int, 0, 8),
		chain:        chain,
		mempool:      ledger.NewMempool(),
		seen:         make(map[string]struct{}),
	}
}

func (node *Node) Id() int {
	return node.NId
}

func (node *Node) Role() interfaces.INodeRole {
	return node.NRole
}

func (node *Node) HashPower() float64 {
	return node.NHashPower
}

func (node *Node) Stake() float64 {
	return node.NStake
}

func (node *Node) Bandwidth() float64 {
	return node.NBandwidth
}

func (node *Node) IsOnline() bool {
	return node.NIsOnline
}

func (node *Node) SetOnline(isOnline bool) {
	node.NIsOnline = isOnline
}

func (node *Node) IsFaulty() bool {
	return node.NFaultPolicy != interfaces.FAULT_NONE
}

func (node *Node) FaultPolicy() interfaces.IFaultPolicy {
	return node.NFaultPolicy
}

func (node *Node) SetFaultPolicy(policy interfaces.IFaultPolicy) {
	node.NFaultPolicy = policy
}

func (node *Node) Peers() []int {
	return node.peers
}

// AddPeers inserts peer ids keeping the list sorted and free of duplicates.
func (node *Node) AddPeers(peerIds ...int) {
	for _, id := range peerIds {
		if id == node.NId || node.HasPeer(id) {
			continue
		}
		i := sort.SearchInts(node.peers, id)
		node.peers = append(node.peers, 0)
		copy(node.peers[i+1:], node.peers[i:])
		node.peers[i] = id
	}
}

func (node *Node) HasPeer(peerId int) bool {
	i := sort.SearchInts(node.peers, peerId)
	return i < len(node.peers) && node.peers[i] == peerId
}

func (node *Node) Chain() *ledger.ChainView {
	return node.chain
}

func (node *Node) Mempool() *ledger.Mempool {
	return node.mempool
}

func (node *Node) Protocol() interfaces.IProtocol {
	return node.protocol
}

func (node *Node) SetProtocol(protocol interfaces.IProtocol) {
	node.protocol = protocol
}

func (node *Node) MarkSeen(key string) bool {
	if _, ok := node.seen[key]; ok {
		return false
	}
	node.seen[key] = struct{}{}
	return true
}
