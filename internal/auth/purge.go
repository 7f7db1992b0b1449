package auth

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulePurge registers the expired-handoff cleanup on c using a cron spec
// such as "@every 5m".
func (s *Service) SchedulePurge(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := s.PurgeExpired(ctx)
		if err != nil {
			log.Printf("[ERROR] purge token handoffs: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[INFO] purged %d expired token handoffs", n)
		}
	})
}
