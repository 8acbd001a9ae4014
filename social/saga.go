package social

import (
	"context"
	"fmt"
	"log"
)

// step is one forward/compensating action pair of a multi-store write.
// compensate is best-effort: its own failure is logged, never escalated.
// A step whose committed func reports true is irreversible; once it has
// run, compensations of earlier steps are discarded so a later failure
// can no longer unwind state the authoritative store already holds.
type step struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
	committed  func() bool
}

// saga runs steps in order. On failure it compensates the completed,
// still-reversible steps in reverse order and returns the step error.
type saga struct {
	steps []step
}

func (s *saga) execute(ctx context.Context) error {
	var done []step
	for _, st := range s.steps {
		if err := st.run(ctx); err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				if done[i].compensate == nil {
					continue
				}
				if cerr := done[i].compensate(ctx); cerr != nil {
					log.Printf("Saga: compensation %q failed: %v", done[i].name, cerr)
				}
			}
			return fmt.Errorf("%s: %w", st.name, err)
		}
		if st.committed != nil && st.committed() {
			done = done[:0]
			continue
		}
		done = append(done, st)
	}
	return nil
}
