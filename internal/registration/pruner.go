package registration

import (
	"context"
	"log"
	"time"

	"github.com/screenfleet/server/internal/repo"
)

// PruneAttempts runs an hourly loop deleting registration attempt records
// older than the retention window. A failed iteration is logged and the
// loop continues.
func PruneAttempts(ctx context.Context, attempts repo.AttemptRepo, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := attempts.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Printf("attempt pruning failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("pruned %d registration attempt records", n)
			}
		}
	}
}
