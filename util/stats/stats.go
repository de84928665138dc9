package stats

import (
	"io"
	"math"
	"strconv"
	"strings"

	"consensussim/interfaces"
	"consensussim/ledger"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Source is the finished run the overview is taken from.
type Source interface {
	Time() int64
	Nodes() []interfaces.INode
	Arena() *ledger.Arena
	AgreedHead() ledger.BlockId
	EventsExecuted() uint64
	Trace() uint64
}

func PrintStatsOverview(source Source, out io.Writer) error {
	statsOverview, err := json.Marshal(NewStatsOverview(source))
	if err != nil {
		return eris.Wrap(err, "marshal stats overview")
	}
	_, err = out.Write(statsOverview)
	return err
}

type StatsOverview struct {
	SimulatedTime          int64
	EventsExecuted         uint64
	Trace                  string
	BlockCountPerNode      map[string]int
	MinedBlockCountPerNode map[string]map[string]int
	StatsPerNodePerType    map[string]map[string]float64
	PeersPerNode           map[string]string
	AgreedChain            []int
}

func NewStatsOverview(source Source) *StatsOverview {
	var minedBlockCount map[string]map[string]int = make(map[string]map[string]int)
	var blockCount map[string]int = make(map[string]int)
	var statsPerNodePerType map[string]map[string]float64 = make(map[string]map[string]float64)
	var peersPerNode map[string]string = make(map[string]string)

	arena := source.Arena()
	overallHashPower := 0.0
	for _, n := range source.Nodes() {
		overallHashPower += n.HashPower()
	}
	secondsSimulated := float64(source.Time()) / 1000

	// nodes are indexed by id, so iteration order is deterministic
	for _, n := range source.Nodes() {
		nId := strconv.Itoa(n.Id())
		chain := n.Chain()
		current := arena.Chain(chain.Head())

		blockCount[nId] = len(current) - 1
		peerIds := make([]string, len(n.Peers()))
		for i, peer := range n.Peers() {
			peerIds[i] = strconv.Itoa(peer)
		}
		peersPerNode[nId] = strings.Join(peerIds, ",")

		minedBlockCount[nId] = make(map[string]int)
		txCount := 0
		for _, id := range current[1:] {
			block, _ := arena.Block(id)
			minedBlockCount[nId][strconv.Itoa(block.Producer())] += 1
			txCount += block.TxCount()
		}

		nodeStats := make(map[string]float64)
		nodeStats["current"] = float64(len(current) - 1)
		nodeStats["ledger"] = float64(chain.Len())
		nodeStats["finalized"] = float64(chain.FinalizedHeight())
		nodeStats["tips"] = float64(len(chain.Tips()))
		nodeStats["mempool"] = float64(n.Mempool().Len())
		nodeStats["txs"] = float64(txCount)
		nodeStats["throughput"] = ratio(float64(txCount), secondsSimulated)       // tx/s
		nodeStats["meanBlockTime"] = ratio(secondsSimulated, nodeStats["current"]) // seconds
		nodeStats["hashPower"] = n.HashPower()
		nodeStats["hashPowerPercentage"] = ratio(n.HashPower(), overallHashPower) * 100
		nodeStats["stake"] = n.Stake()
		nodeStats["minedBlocks"] = float64(minedBlockCount[nId][nId])
		nodeStats["minedBlocksPercentage"] = ratio(nodeStats["minedBlocks"], nodeStats["current"]) * 100
		if n.IsFaulty() {
			nodeStats["faulty"] = 1
		}
		statsPerNodePerType[nId] = nodeStats
	}

	agreed := arena.Chain(source.AgreedHead())
	agreedChain := make([]int, len(agreed))
	for i, id := range agreed {
		agreedChain[i] = int(id)
	}
	return &StatsOverview{
		SimulatedTime:          source.Time(),
		EventsExecuted:         source.EventsExecuted(),
		Trace:                  strconv.FormatUint(source.Trace(), 16),
		BlockCountPerNode:      blockCount,
		MinedBlockCountPerNode: minedBlockCount,
		StatsPerNodePerType:    statsPerNodePerType,
		PeersPerNode:           peersPerNode,
		AgreedChain:            agreedChain,
	}
}

// ratio is zero instead of NaN or Inf, which json cannot encode.
func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}
