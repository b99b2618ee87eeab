package producers

import (
	"context"

	"github.com/fin-agent/backend/internal/storage/models"
)

// Producer is one external document collaborator. Each may fail
// independently; the orchestrator catches per-producer failures and
// continues the batch.
type Producer interface {
	Name() string
	Produce(ctx context.Context, ticker string) (models.Document, error)
}

// Config carries the settings shared by the concrete producers.
type Config struct {
	// TechnicalWindow is the requested analysis window, e.g. "60d".
	TechnicalWindow string
	// EdgarUserAgent identifies this client to SEC EDGAR, which rejects
	// anonymous requests.
	EdgarUserAgent string
	// TimeoutSec bounds each outbound fetch.
	TimeoutSec int
}

func DefaultConfig() Config {
	return Config{
		TechnicalWindow: "60d",
		TimeoutSec:      15,
	}
}
