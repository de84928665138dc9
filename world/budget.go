package world

import (
	"fmt"
	"math"

	"consensussim/util/file"
	"consensussim/util/metrics"
)

func (world *World) budgetReached(next int64) bool {
	if world.timeout.InBlocks() {
		return world.arena.MaxHeight() >= blocks(world.timeout.Warmup+world.timeout.Runtime)
	}
	return next > file.SecondsToTicks(world.timeout.Warmup+world.timeout.Runtime)
}

func (world *World) budgetString() string {
	if world.timeout.InBlocks() {
		return fmt.Sprintf("%d+%d blocks", blocks(world.timeout.Warmup), blocks(world.timeout.Runtime))
	}
	return fmt.Sprintf("%v+%vs", world.timeout.Warmup, world.timeout.Runtime)
}

// finish fixes the observation window. A block budget measures from the
// first block at the warmup height to the first block at the final height.
func (world *World) finish() {
	world.finished = true
	if !world.timeout.InBlocks() {
		world.window = metrics.Window{
			Start: file.SecondsToTicks(world.timeout.Warmup),
			End:   file.SecondsToTicks(world.timeout.Warmup + world.timeout.Runtime),
		}
		return
	}
	start, ok := world.arena.HeightReachedAt(blocks(world.timeout.Warmup))
	if !ok {
		start = world.WTime
	}
	end, ok := world.arena.HeightReachedAt(blocks(world.timeout.Warmup + world.timeout.Runtime))
	if !ok {
		end = world.WTime
	}
	world.window = metrics.Window{Start: start, End: end}
}

func blocks(n float64) int {
	return int(math.Round(n))
}
