package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Poll calls predicate up to maxAttempts times with a fixed delay between
// attempts, returning nil as soon as the predicate reports true. Used by the
// browser strategy to wait out anti-bot challenges: every automation site
// shares this one loop instead of hand-rolling its own.
func Poll(ctx context.Context, maxAttempts int, delay time.Duration, predicate func(ctx context.Context) (bool, error)) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		ok, err := predicate(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		// No sleep after the final attempt.
		if attempt >= maxAttempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return eris.Errorf("poll: condition not met after %d attempts", maxAttempts)
}
