package bot

import (
	"context"
	"log/slog"
	"time"
)

// Poller pulls updates over long polling and feeds them to the flow one at a
// time. Order within a chat matters; throughput does not at club scale.
type Poller struct {
	client      *Client
	flow        *Flow
	logger      *slog.Logger
	pollTimeout time.Duration
}

func NewPoller(client *Client, flow *Flow, logger *slog.Logger) *Poller {
	return &Poller{
		client:      client,
		flow:        flow,
		logger:      logger,
		pollTimeout: 30 * time.Second,
	}
}

// Run blocks until the context is cancelled. Transient API failures back off
// and retry; the offset only advances past updates that were handled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("bot poller started")
	var offset int64
	for {
		if ctx.Err() != nil {
			p.logger.Info("bot poller stopped")
			return ctx.Err()
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Error("get updates failed", "error", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, upd := range updates {
			if err := p.flow.HandleUpdate(ctx, upd); err != nil {
				p.logger.Error("handle update failed", "update_id", upd.UpdateID, "error", err)
			}
			offset = upd.UpdateID + 1
		}
	}
}
