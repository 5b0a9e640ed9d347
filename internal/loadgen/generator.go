package loadgen

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// event is the wire shape of POST /xp-events.
type event struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

func userIDs(runID string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("load-%s-%04d", runID, i+1)
	}
	return ids
}

// generateEvents builds cfg.Events events over users. A DuplicateRatio share
// of them repeat an earlier event verbatim, so the service must drop them.
func generateEvents(cfg *Config, users []string) []event {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	events := make([]event, 0, cfg.Events)
	for range cfg.Events {
		if len(events) > 0 && rng.Float64() < cfg.DuplicateRatio {
			events = append(events, events[rng.IntN(len(events))])
			continue
		}
		events = append(events, event{
			EventID: uuid.NewString(),
			UserID:  users[rng.IntN(len(users))],
			Amount:  1 + rng.Int64N(cfg.MaxAmount),
			Reason:  "load",
		})
	}
	return events
}
