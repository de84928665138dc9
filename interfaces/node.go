package interfaces

import (
	"consensussim/ledger"
)

type INode interface {
	Id() int
	Role() INodeRole
	HashPower() float64
	Stake() float64
	// Bandwidth is the outgoing bandwidth in bits per second, 0 means unlimited.
	Bandwidth() float64
	IsOnline() bool
	SetOnline(isOnline bool)
	IsFaulty() bool
	FaultPolicy() IFaultPolicy
	SetFaultPolicy(policy IFaultPolicy)
	// Peers returns the neighbor ids in ascending order.
	Peers() []int
	AddPeers(peerIds ...int)
	HasPeer(peerId int) bool
	Chain() *ledger.ChainView
	Mempool() *ledger.Mempool
	Protocol() IProtocol
	SetProtocol(protocol IProtocol)
	// MarkSeen records a message key and reports whether it was new.
	MarkSeen(key string) bool
}

type nodeRole string

type INodeRole interface {
	getNodeRole() nodeRole
	String() string
}

// this is just for preventing simple string from being used as INodeRole
func (role nodeRole) getNodeRole() nodeRole {
	return role
}

func (role nodeRole) String() string {
	return string(role)
}

// add node roles here
const (
	MINING_NODE     = nodeRole("mining")
	NON_MINING_NODE = nodeRole("non-mining")
	CLIENT_NODE     = nodeRole("client")
)

var NODE_ROLE_MAP = map[string]INodeRole{
	"mining":     MINING_NODE,
	"non-mining": NON_MINING_NODE,
	"client":     CLIENT_NODE,
	"":           NON_MINING_NODE,
}

type faultPolicy string

type IFaultPolicy interface {
	getFaultPolicy() faultPolicy
	String() string
}

func (policy faultPolicy) getFaultPolicy() faultPolicy {
	return policy
}

func (policy faultPolicy) String() string {
	return string(policy)
}

// add fault policies here
const (
	FAULT_NONE        = faultPolicy("none")
	FAULT_CRASH       = faultPolicy("crash")
	FAULT_SILENT_DROP = faultPolicy("silent-drop")
	FAULT_DELAY       = faultPolicy("delay")
	FAULT_EQUIVOCATE  = faultPolicy("equivocate")
	FAULT_SELFISH     = faultPolicy("selfish")
)

var FAULT_POLICY_MAP = map[string]IFaultPolicy{
	"none":        FAULT_NONE,
	"":            FAULT_NONE,
	"crash":       FAULT_CRASH,
	"silent-drop": FAULT_SILENT_DROP,
	"delay":       FAULT_DELAY,
	"equivocate":  FAULT_EQUIVOCATE,
	"selfish":     FAULT_SELFISH,
}
