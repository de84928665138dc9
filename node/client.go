package node

import "consensussim/ledger"

// Client is a workload generator attached to one node. It keeps at most one transaction in flight.
type Client struct {
	Id       int
	NodeId   int
	Interval int64 // ms between a commit and the next submission
	Pending  ledger.TxId
	Issued   int
}

func NewClient(id int, nodeId int, interval int64) *Client {
	return &Client{Id: id, NodeId: nodeId, Interval: interval, Pending: ledger.NoTx}
}

func (client *Client) HasPending() bool {
	return client.Pending != ledger.NoTx
}

// AttachClients spreads numClients over the node ids: client-role nodes first, all nodes round robin otherwise.
func AttachClients(numClients int, clientNodeIds []int, allNodeIds []int, interval int64) []*Client {
	targets := clientNodeIds
	if len(targets) == 0 {
		targets = allNodeIds
	}
	clients := make([]*Client, 0, numClients)
	if len(targets) == 0 {
		return clients
	}
	for i := 0; i < numClients; i++ {
		clients = append(clients, NewClient(i, targets[i%len(targets)], interval))
	}
	return clients
}
