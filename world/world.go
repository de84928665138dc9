package world

import (
	"context"
	"encoding/binary"
	"hash"
	"hash/fnv"
	"runtime"
	"sync"
	"time"

	"consensussim/event"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/network"
	"consensussim/node"
	"consensussim/util/file"
	"consensussim/util/logger"
	"consensussim/util/metrics"
	"consensussim/util/random"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const progressEvery = 500000

// World is one simulation instance: the clock, the queue and everything
// the events act on. It runs on a single goroutine, only the control
// methods may be called from elsewhere.
type World struct {
	name         string
	queue        *event.Queue
	WTime        int64 `json:"worldTime"` // ms since sim start
	nodes        []interfaces.INode
	nodeIds      []int
	clients      []*node.Client
	network      *network.Network
	arena        *ledger.Arena
	metrics      *metrics.Collector
	rng          *random.RNG
	logger       zerolog.Logger
	audit        *logger.AuditLogger
	seed         uint64
	protocolType interfaces.IProtocolType
	timeout      file.TimeoutConfig
	sizes        file.SizesConfig

	committedAt    map[ledger.BlockId]int64
	heightCommits  map[int]ledger.BlockId
	eventsExecuted uint64
	trace          hash.Hash64
	window         metrics.Window
	finished       bool

	control control
}

type control struct {
	mu         sync.Mutex
	cond       *sync.Cond
	paused     bool
	terminated bool
	speed      float64 // simulated ms per wall ms, 0 runs unthrottled
}

func (world *World) Name() string {
	return world.name
}

func (world *World) Time() int64 {
	return world.WTime
}

func (world *World) Seed() uint64 {
	return world.seed
}

func (world *World) Schedule(ev interfaces.IEvent) (interfaces.Token, error) {
	if ev.Time() < world.WTime {
		return 0, eris.Wrapf(interfaces.ErrEventInPast, "%v at %d, now is %d", ev.Type(), ev.Time(), world.WTime)
	}
	return world.queue.Add(ev)
}

func (world *World) Cancel(token interfaces.Token) bool {
	return world.queue.Cancel(token)
}

// Node returns nil for unknown ids.
func (world *World) Node(id int) interfaces.INode {
	if id < 0 || id >= len(world.nodes) {
		return nil
	}
	return world.nodes[id]
}

func (world *World) Nodes() []interfaces.INode {
	return world.nodes
}

func (world *World) NodeIds() []int {
	return world.nodeIds
}

func (world *World) Clients() []*node.Client {
	return world.clients
}

func (world *World) Network() interfaces.INetwork {
	return world.network
}

func (world *World) Arena() *ledger.Arena {
	return world.arena
}

func (world *World) Metrics() *metrics.Collector {
	return world.metrics
}

func (world *World) Rand() *random.RNG {
	return world.rng
}

func (world *World) Logger() *zerolog.Logger {
	return &world.logger
}

func (world *World) Audit() *logger.AuditLogger {
	return world.audit
}

func (world *World) Queue() interfaces.IQueue {
	return world.queue
}

func (world *World) EventsExecuted() uint64 {
	return world.eventsExecuted
}

// Trace is a digest over every executed event, equal traces mean equal runs.
func (world *World) Trace() uint64 {
	return world.trace.Sum64()
}

// Window is the observation window, final once Run returned.
func (world *World) Window() metrics.Window {
	return world.window
}

func (world *World) Pause() {
	world.control.mu.Lock()
	defer world.control.mu.Unlock()
	world.control.paused = true
}

func (world *World) Resume() {
	world.control.mu.Lock()
	defer world.control.mu.Unlock()
	world.control.paused = false
	world.control.cond.Broadcast()
}

func (world *World) Terminate() {
	world.control.mu.Lock()
	defer world.control.mu.Unlock()
	world.control.terminated = true
	world.control.cond.Broadcast()
}

// SetSpeed throttles the run to speed simulated ms per wall clock ms, 0 removes the limit.
func (world *World) SetSpeed(speed float64) {
	world.control.mu.Lock()
	defer world.control.mu.Unlock()
	world.control.speed = speed
}

// await blocks while paused and returns the speed and whether the run was terminated.
func (world *World) await() (float64, bool) {
	world.control.mu.Lock()
	defer world.control.mu.Unlock()
	for world.control.paused && !world.control.terminated {
		world.control.cond.Wait()
	}
	return world.control.speed, world.control.terminated
}

// Run executes events until the budget is used up, the queue is empty or
// the run is terminated. An interrupted run returns ErrInterrupted.
func (world *World) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, world.Terminate)
	defer stop()

	start := time.Now()
	world.logger.Info().Str("budget", world.budgetString()).Int("nodes", len(world.nodes)).Msg("simulation started")

	var wallAnchor time.Time
	simAnchor := int64(0)
	lastSpeed := 0.0
	for {
		speed, terminated := world.await()
		if terminated {
			return eris.Wrapf(interfaces.ErrInterrupted, "%v stopped at %d after %d events", world.name, world.WTime, world.eventsExecuted)
		}
		next := world.queue.Peek()
		if next == nil || world.budgetReached(next.Time()) {
			break
		}
		ev := world.queue.NextEvent()
		world.WTime = ev.Time()

		if speed > 0 {
			if speed != lastSpeed {
				wallAnchor, simAnchor, lastSpeed = time.Now(), world.WTime, speed
			}
			due := wallAnchor.Add(time.Duration(float64(world.WTime-simAnchor)/speed) * time.Millisecond)
			if wait := time.Until(due); wait > time.Millisecond {
				time.Sleep(wait)
			}
		} else {
			lastSpeed = 0
		}

		world.traceEvent(ev)
		if err := ev.Execute(world); err != nil {
			return &interfaces.SimulationError{Time: ev.Time(), EventType: ev.Type(), NodeId: ev.TargetId(), Cause: err}
		}
		world.eventsExecuted++
		if world.eventsExecuted%progressEvery == 0 {
			world.logProgress(start)
		}
	}
	world.finish()
	world.logger.Info().
		Int64("worldTime", world.WTime).
		Uint64("events", world.eventsExecuted).
		Dur("took", time.Since(start)).
		Int("blocks", world.arena.NumBlocks()-1).
		Msg("simulation ended")
	return nil
}

func (world *World) traceEvent(ev interfaces.IEvent) {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(ev.Time()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(ev.TargetId())))
	_, _ = world.trace.Write(buf[:])
	_, _ = world.trace.Write([]byte(ev.Type().String()))
}

func (world *World) logProgress(start time.Time) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	world.logger.Debug().
		Int64("worldTime", world.WTime).
		Uint64("events", world.eventsExecuted).
		Int("queue", world.queue.Length()).
		Float64("heapGiB", bToGb(m.Alloc)).
		Float64("sysGiB", bToGb(m.Sys)).
		Uint32("gcCycles", m.NumGC).
		Dur("elapsed", time.Since(start)).
		Msg("progress")
	if world.queue.Length() > 50000 {
		world.logger.Debug().Str("events", world.queue.CountEventTypes()).Msg("queue contents")
	}
}

func bToGb(b uint64) float64 {
	return float64(b) / 1024 / 1024 / 1024
}

func newTrace() hash.Hash64 {
	return fnv.New64a()
}
