package node

import (
	"testing"

	"consensussim/interfaces"
	"consensussim/ledger"

	"github.com/stretchr/testify/assert"
)

func TestPeersStaySortedAndUnique(t *testing.T) {
	n := NewNode(3, interfaces.MINING_NODE, 1, 0, 0, nil)
	n.AddPeers(9, 1, 5, 3, 1, 7)
	assert.Equal(t, []int{1, 5, 7, 9}, n.Peers())
	assert.True(t, n.HasPeer(5))
	assert.False(t, n.HasPeer(3))
}

func TestMarkSeen(t *testing.T) {
	n := NewNode(0, interfaces.MINING_NODE, 1, 0, 0, nil)
	assert.True(t, n.MarkSeen("tx:1"))
	assert.False(t, n.MarkSeen("tx:1"))
}

func TestFaultPolicy(t *testing.T) {
	n := NewNode(1, interfaces.NON_MINING_NODE, 0, 0, 0, nil)
	assert.False(t, n.IsFaulty())
	n.SetFaultPolicy(interfaces.FAULT_EQUIVOCATE)
	assert.True(t, n.IsFaulty())
}

func TestAttachClients(t *testing.T) {
	clients := AttachClients(5, nil, []int{0, 1, 2}, 100)
	nodes := make([]int, 0, len(clients))
	for _, c := range clients {
		nodes = append(nodes, c.NodeId)
		assert.Equal(t, ledger.NoTx, c.Pending)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, nodes)

	clients = AttachClients(3, []int{7}, []int{0, 1, 7}, 100)
	for _, c := range clients {
		assert.Equal(t, 7, c.NodeId)
	}
}
