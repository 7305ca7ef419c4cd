package jobs

import (
	"context"
	"log"
	"time"

	"presage/attendance/internal/checkin"
	"presage/attendance/internal/config"
)

// StartSessionCloseJob periodically deactivates attendance sessions older
// than the configured maximum age. The source system only ever deactivated
// sessions manually, so this runs only when explicitly enabled. Closing goes
// through the service so the mint-side cache is evicted alongside.
func StartSessionCloseJob(ctx context.Context, cfg config.Config, service *checkin.Service) {
	if !cfg.SessionAutoCloseEnabled {
		return
	}
	interval := cfg.SessionAutoCloseInterval
	if interval <= 0 {
		interval = time.Minute
	}
	maxAge := cfg.SessionMaxAge
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-maxAge)
				tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				closed, err := service.CloseStaleSessions(tickCtx, cutoff)
				cancel()
				if err != nil {
					log.Printf("session close job error: %v", err)
					continue
				}
				if closed > 0 {
					log.Printf("session close job deactivated %d sessions", closed)
				}
			}
		}
	}()
}
