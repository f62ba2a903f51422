package device

import "fmt"

// Stage is one fused operator in a simulated chain: records in, records
// out. A nil Stage is the identity.
type Stage func(records []uint64) []uint64

// FilterStage keeps records satisfying keep.
func FilterStage(keep func(uint64) bool) Stage {
	return func(records []uint64) []uint64 {
		kept := records[:0:0]

		for _, value := range records {
			if keep(value) {
				kept = append(kept, value)
			}
		}

		return kept
	}
}

// MapStage transforms each record.
func MapStage(transform func(uint64) uint64) Stage {
	return func(records []uint64) []uint64 {
		mapped := make([]uint64, len(records))
		for i, value := range records {
			mapped[i] = transform(value)
		}

		return mapped
	}
}

// Sim is an in-process Device that executes a chain of stages over the
// wrapper's buffer layout. Per-ghost consumed and produced counts reflect
// the records entering and leaving each stage; internal capability slots
// are left untagged, since the stages hold no capabilities of their own.
type Sim struct {
	layout Layout
	stages []Stage
	// Steps counts completed invocations, for tests and diagnostics.
	Steps int
}

// NewSim returns a simulator for the layout. Missing stages default to the
// identity, so NewSim(DefaultLayout(n)) is an n-operator identity chain.
func NewSim(layout Layout, stages ...Stage) (*Sim, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	if len(stages) > layout.Ghosts {
		return nil, fmt.Errorf("device: %d stages for %d ghosts", len(stages), layout.Ghosts)
	}

	return &Sim{layout: layout, stages: stages}, nil
}

// Layout returns the simulator's buffer geometry.
func (s *Sim) Layout() Layout { return s.layout }

// Run executes one step: decode the host region, run every stage, encode
// the records and per-ghost progress into the output region.
func (s *Sim) Run(hc *HardwareCommon) error {
	host := hc.HostMemory()
	if len(host) < s.layout.HostWords() {
		return fmt.Errorf("device: host region holds %d slots, need %d", len(host), s.layout.HostWords())
	}

	_, _, records := s.layout.DecodeInput(host)

	ghosts := make([]GhostProgress, s.layout.Ghosts)

	for i := range ghosts {
		consumed := len(records)

		if i < len(s.stages) && s.stages[i] != nil {
			records = s.stages[i](records)
		}

		ghosts[i] = GhostProgress{
			Consumed: int64(consumed),
			Produced: int64(len(records)),
		}
	}

	if err := s.layout.EncodeOutput(hc.OutputMemory(), records, ghosts); err != nil {
		return err
	}

	s.Steps++

	return nil
}
