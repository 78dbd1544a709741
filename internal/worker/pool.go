package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// runPool spawns one goroutine per slot and waits until all of them return.
// Each slot's error (or recovered panic) is joined into the result.
func (s *Supervisor) runPool(ctx context.Context) error {
	generation, generationID := s.beginGeneration()

	s.logger.Info("Starting consumer pool",
		slog.Int("threads", s.slots),
		slog.Int("generation", generation),
		slog.String("generation_id", generationID),
	)

	errs := make([]error, s.slots)
	var wg sync.WaitGroup

	for slot := 0; slot < s.slots; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[slot] = fmt.Errorf("consumer %d panicked: %v", slot, r)
				}
			}()

			s.active.Add(1)
			defer s.active.Add(-1)

			errs[slot] = s.newConsumer(slot).Run(ctx)
		}(slot)
	}

	wg.Wait()

	err := errors.Join(errs...)
	s.logger.Info("Consumer pool exited",
		slog.Int("generation", generation),
		slog.Bool("with_error", err != nil),
	)

	return err
}

func (s *Supervisor) beginGeneration() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Generation++
	s.status.GenerationID = uuid.NewString()
	return s.status.Generation, s.status.GenerationID
}
