package invoice

import (
	"context"
	"time"

	"github.com/router-for-me/QRMenuBilling/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	sweepBatchSize       = 500
	defaultSweepInterval = time.Hour
)

// SweepOverdue marks every sent or viewed invoice past its due date as
// overdue. A row that fails to update is logged and skipped; the number of
// invoices moved is returned.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	now := s.clock()
	affected := 0
	var lastID uint64
	for {
		if errCtx := ctx.Err(); errCtx != nil {
			return affected, errCtx
		}
		var ids []uint64
		if errPluck := s.db.WithContext(ctx).Model(&models.Invoice{}).
			Where("status IN ? AND due_date < ? AND id > ?", overdueCandidates, now, lastID).
			Order("id ASC").
			Limit(sweepBatchSize).
			Pluck("id", &ids).Error; errPluck != nil {
			return affected, errPluck
		}
		if len(ids) == 0 {
			return affected, nil
		}
		for _, id := range ids {
			res := s.db.WithContext(ctx).Model(&models.Invoice{}).
				Where("id = ? AND status IN ? AND due_date < ?", id, overdueCandidates, now).
				Updates(map[string]any{"status": models.InvoiceStatusOverdue, "updated_at": now})
			if res.Error != nil {
				log.WithError(res.Error).WithField("invoice_id", id).Warn("overdue sweep: update failed")
				continue
			}
			affected += int(res.RowsAffected)
		}
		lastID = ids[len(ids)-1]
		if len(ids) < sweepBatchSize {
			return affected, nil
		}
	}
}

// Job is one periodic maintenance task run by a Sweeper.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Sweeper runs maintenance jobs on a fixed interval.
type Sweeper struct {
	jobs     []Job
	interval time.Duration
}

// NewSweeper constructs a Sweeper. A non-positive interval uses one hour.
func NewSweeper(interval time.Duration, jobs ...Job) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{jobs: jobs, interval: interval}
}

// Start runs the sweep loop in the background until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil || len(s.jobs) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("billing sweeper started (interval=%s, jobs=%d)", s.interval, len(s.jobs))
}

func (s *Sweeper) run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job once and returns the affected count per job name.
// Failed jobs are logged and reported with their partial count.
func (s *Sweeper) RunOnce(ctx context.Context) map[string]int {
	results := make(map[string]int, len(s.jobs))
	for _, job := range s.jobs {
		if job.Run == nil {
			continue
		}
		n, errRun := job.Run(ctx)
		results[job.Name] = n
		if errRun != nil {
			log.WithError(errRun).WithField("job", job.Name).Warn("billing sweeper: job failed")
			continue
		}
		if n > 0 {
			log.WithField("job", job.Name).Infof("billing sweeper: %d rows updated", n)
		}
	}
	return results
}
