package usecase

import (
	"context"
	"fmt"

	"PriceBand/internal/domain/models"
	"PriceBand/pkg/logger"
	"PriceBand/pkg/queue"
)

// RefreshMessageType is the queue message type consumed by RefreshJob.
const RefreshMessageType = "forecast.refresh"

// RefreshJob runs queued refresh requests.
type RefreshJob struct {
	refresher *Refresher
	log       *logger.Logger
}

func NewRefreshJob(refresher *Refresher, log *logger.Logger) *RefreshJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RefreshJob{refresher: refresher, log: log}
}

func (j *RefreshJob) Name() string { return "refresh" }

func (j *RefreshJob) Type() string { return RefreshMessageType }

func (j *RefreshJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[models.RefreshRequest](payload)
	if err != nil {
		return fmt.Errorf("refresh job: %w", err)
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeUpdate
	}
	latest, err := j.refresher.Refresh(ctx, mode, req.Symbols)
	if err != nil {
		return err
	}
	j.log.Info("queued refresh done",
		logger.String("mode", mode),
		logger.Strings("symbols", req.Symbols),
		logger.Int("rows", len(latest.Rows)))
	return nil
}
