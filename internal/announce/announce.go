// Package announce fans committed lottery events out to display screens and
// other listeners. Every announcer is best effort.
package announce

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/logger"

	"luckydraw/internal/models"
)

// Log writes events to the process log.
type Log struct{}

func (Log) Announce(_ context.Context, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	logger.Infof("event %s: %s", event.Kind, body)
	return nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Announce(context.Context, models.Event) error { return nil }
