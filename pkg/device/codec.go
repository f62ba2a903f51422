package device

import "fmt"

// chunkWords is the number of 64-bit slots per transfer chunk; the driver
// moves memory in multiples of it.
const chunkWords = 8

// progressWords is the number of slots in one ghost's progress record:
// consumed, produced, tagged internal time, internal delta.
const progressWords = 4

// Layout fixes the word-level geometry of the host and output regions for
// one wrapper. All sizes are in 8-slot chunks, matching the driver's
// transfer granularity.
//
// Every value slot uses a low-bit tag: a record or frontier element v is
// stored as v<<1|1, so a genuine value at time zero is distinguishable from
// an absent (all-zero) slot.
type Layout struct {
	// DataChunks sizes the input record region.
	DataChunks int
	// OutputChunks sizes the output record region. The per-ghost progress
	// block sits immediately after it, so OutputChunks must not be smaller
	// than the records the device may emit.
	OutputChunks int
	// FrontierChunks sizes the frontier region, which also holds the batch
	// timestamp in slot 0.
	FrontierChunks int
	// Ghosts is the number of fused operators the device hosts.
	Ghosts int
}

// DefaultDataChunks matches the driver's fixed input window.
const DefaultDataChunks = 500

// DefaultFrontierChunks matches the driver's fixed frontier window.
const DefaultFrontierChunks = 2

// DefaultLayout returns the driver-fixed layout for a chain of the given
// length.
func DefaultLayout(ghosts int) Layout {
	return Layout{
		DataChunks:     DefaultDataChunks,
		OutputChunks:   DefaultDataChunks,
		FrontierChunks: DefaultFrontierChunks,
		Ghosts:         ghosts,
	}
}

// Validate checks that the layout can hold its frontier and progress
// regions.
func (l Layout) Validate() error {
	if l.Ghosts <= 0 {
		return fmt.Errorf("device: layout needs at least one ghost, have %d", l.Ghosts)
	}

	if 1+l.Ghosts > l.FrontierChunks*chunkWords {
		return fmt.Errorf("device: frontier region of %d slots cannot hold %d ghost frontiers",
			l.FrontierChunks*chunkWords, l.Ghosts)
	}

	if l.OutputChunks < l.DataChunks {
		return fmt.Errorf("device: output region (%d chunks) smaller than input region (%d chunks)",
			l.OutputChunks, l.DataChunks)
	}

	return nil
}

// HostWords returns the input region size in slots.
func (l Layout) HostWords() int {
	return l.FrontierChunks*chunkWords + l.DataChunks*chunkWords
}

// OutputWords returns the output region size in slots.
func (l Layout) OutputWords() int {
	return l.OutputChunks*chunkWords + progressWords*l.Ghosts
}

// GhostProgress is the decoded progress record of one ghost.
type GhostProgress struct {
	Consumed int64
	Produced int64
	// InternalTime and InternalDelta describe a capability change. They are
	// meaningful only when InternalValid is set; an untagged zero slot means
	// the ghost reported no capability change.
	InternalTime  uint64
	InternalDelta int64
	InternalValid bool
}

// EncodeInput writes a batch into the host region: the timestamp in slot 0
// (zero on a no-data probe), each ghost's frontier, then the input records.
// Unused slots are zeroed.
func (l Layout) EncodeInput(mem []uint64, time uint64, frontiers [][]uint64, data []uint64) error {
	if len(mem) < l.HostWords() {
		return fmt.Errorf("device: host region holds %d slots, need %d", len(mem), l.HostWords())
	}

	if len(frontiers) != l.Ghosts {
		return fmt.Errorf("device: have %d frontiers for %d ghosts", len(frontiers), l.Ghosts)
	}

	frontierRegion := l.FrontierChunks * chunkWords

	cursor := 0
	mem[cursor] = time
	cursor++

	for _, frontier := range frontiers {
		if len(frontier) == 0 {
			if cursor >= frontierRegion {
				return fmt.Errorf("device: frontier region overflow at slot %d", cursor)
			}

			mem[cursor] = 0
			cursor++

			continue
		}

		for _, element := range frontier {
			if cursor >= frontierRegion {
				return fmt.Errorf("device: frontier region overflow at slot %d", cursor)
			}

			mem[cursor] = element<<1 | 1
			cursor++
		}
	}

	for ; cursor < frontierRegion; cursor++ {
		mem[cursor] = 0
	}

	if len(data) > l.DataChunks*chunkWords {
		return fmt.Errorf("device: %d records exceed the input window of %d slots",
			len(data), l.DataChunks*chunkWords)
	}

	for _, value := range data {
		mem[cursor] = value<<1 | 1
		cursor++
	}

	for ; cursor < l.HostWords(); cursor++ {
		mem[cursor] = 0
	}

	return nil
}

// DecodeInput reads a host region back into its parts. The per-ghost split
// of a multi-element frontier region is not recoverable, so the frontier
// elements are returned as a single slice.
func (l Layout) DecodeInput(mem []uint64) (time uint64, frontier []uint64, data []uint64) {
	frontierRegion := l.FrontierChunks * chunkWords

	time = mem[0]

	for _, slot := range mem[1:frontierRegion] {
		if slot != 0 {
			frontier = append(frontier, slot>>1)
		}
	}

	for _, slot := range mem[frontierRegion:l.HostWords()] {
		if slot != 0 {
			data = append(data, slot>>1)
		}
	}

	return time, frontier, data
}

// EncodeOutput writes a step result into the output region: the records,
// then each ghost's progress block in registration order.
func (l Layout) EncodeOutput(mem []uint64, records []uint64, ghosts []GhostProgress) error {
	if len(mem) < l.OutputWords() {
		return fmt.Errorf("device: output region holds %d slots, need %d", len(mem), l.OutputWords())
	}

	if len(records) > l.OutputChunks*chunkWords {
		return fmt.Errorf("device: %d records exceed the output window of %d slots",
			len(records), l.OutputChunks*chunkWords)
	}

	if len(ghosts) != l.Ghosts {
		return fmt.Errorf("device: have %d progress records for %d ghosts", len(ghosts), l.Ghosts)
	}

	cursor := 0

	for _, value := range records {
		mem[cursor] = value<<1 | 1
		cursor++
	}

	for ; cursor < l.OutputChunks*chunkWords; cursor++ {
		mem[cursor] = 0
	}

	for _, ghost := range ghosts {
		mem[cursor] = uint64(ghost.Consumed)
		mem[cursor+1] = uint64(ghost.Produced)

		if ghost.InternalValid {
			mem[cursor+2] = ghost.InternalTime<<1 | 1
		} else {
			mem[cursor+2] = 0
		}

		mem[cursor+3] = uint64(ghost.InternalDelta)
		cursor += progressWords
	}

	return nil
}

// DecodeOutput reads a step result: the emitted records and each ghost's
// progress block.
func (l Layout) DecodeOutput(mem []uint64) ([]uint64, []GhostProgress) {
	var records []uint64

	for _, slot := range mem[:l.OutputChunks*chunkWords] {
		if slot != 0 {
			records = append(records, slot>>1)
		}
	}

	ghosts := make([]GhostProgress, l.Ghosts)
	base := l.OutputChunks * chunkWords

	for i := range ghosts {
		offset := base + progressWords*i

		tagged := mem[offset+2]

		ghosts[i] = GhostProgress{
			Consumed:      int64(mem[offset]),
			Produced:      int64(mem[offset+1]),
			InternalTime:  tagged >> 1,
			InternalDelta: int64(mem[offset+3]),
			InternalValid: tagged != 0,
		}
	}

	return records, ghosts
}
