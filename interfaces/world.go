package interfaces

import (
	"consensussim/ledger"
	"consensussim/util/logger"
	"consensussim/util/metrics"
	"consensussim/util/random"

	"github.com/rs/zerolog"
)

type IWorld interface {
	Time() int64 // ticks (ms) since sim start
	// Schedule inserts an event at its absolute time, which must not lie in the past.
	Schedule(ev IEvent) (Token, error)
	Cancel(token Token) bool
	Node(id int) INode
	NodeIds() []int
	Network() INetwork
	Arena() *ledger.Arena
	Metrics() *metrics.Collector
	Rand() *random.RNG
	Logger() *zerolog.Logger
	Audit() *logger.AuditLogger
	// CommitBlock reports that a node treats the block as final.
	CommitBlock(nodeId int, blockId ledger.BlockId) error
	// SubmitClientTransaction lets a workload client issue its next transaction.
	SubmitClientTransaction(clientId int) error
	Seed() uint64
}
