package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/rules"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
	"github.com/hallpass-dev/hallpass/internal/metrics"
)

// Sweeper periodically escalates overdue passes, archives passes that
// closed long enough ago, and purges old audit entries. It runs as a
// background goroutine and is stopped via its context or Stop.
type Sweeper struct {
	passes     *PassService
	escalation *EscalationService
	audit      *AuditLog
	cfg        rules.EscalationConfig
	archiveAge time.Duration
	retention  time.Duration
	interval   time.Duration
	metrics    *metrics.Recorder
	now        func() time.Time
	logger     *log.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// SweeperConfig holds the parameters for NewSweeper.
type SweeperConfig struct {
	Escalation rules.EscalationConfig

	// ArchiveAfterDays is how long a closed pass stays live before it is
	// archived. 0 archives on the next sweep.
	ArchiveAfterDays int

	// AuditRetentionDays is how many days of audit history to keep.
	// 0 keeps everything.
	AuditRetentionDays int

	// IntervalMinutes is how often the sweep runs. Defaults to 1.
	IntervalMinutes int

	Metrics *metrics.Recorder
	Now     func() time.Time
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Escalated int
	Archived  int
	Purged    int
	Failures  int
}

// NewSweeper creates a sweeper but does not start it.
func NewSweeper(passes *PassService, esc *EscalationService, audit *AuditLog, cfg SweeperConfig, logger *log.Logger) *Sweeper {
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		passes:     passes,
		escalation: esc,
		audit:      audit,
		cfg:        cfg.Escalation,
		archiveAge: time.Duration(cfg.ArchiveAfterDays) * 24 * time.Hour,
		retention:  time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour,
		interval:   interval,
		metrics:    cfg.Metrics,
		now:        now,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start runs an immediate sweep and then repeats on the configured
// interval until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.loop(ctx)

	s.logger.Printf("sweeper started (interval=%s, archive_after=%dd, audit_retention=%dd)",
		s.interval, int(s.archiveAge.Hours()/24), int(s.retention.Hours()/24))
}

// Stop signals the sweeper to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs every sweep stage once. A failure on one pass is logged
// and counted; it does not stop the rest of the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	start := time.Now()
	var res SweepResult

	s.escalate(ctx, &res)
	s.archive(ctx, &res)
	s.purge(ctx, &res)

	s.metrics.Sweep(time.Since(start), res.Failures)
	if res.Escalated+res.Archived+res.Purged+res.Failures > 0 {
		s.logger.Printf("sweep: escalated=%d archived=%d purged=%d failures=%d",
			res.Escalated, res.Archived, res.Purged, res.Failures)
	}
	return res
}

func (s *Sweeper) escalate(ctx context.Context, res *SweepResult) {
	open, err := s.passes.OpenPasses(ctx)
	if err != nil {
		s.logger.Printf("sweep: list open passes: %v", err)
		res.Failures++
		return
	}
	for _, p := range open {
		level, err := s.escalation.HandleEscalation(ctx, p, s.cfg)
		if err != nil {
			s.logger.Printf("sweep: escalate %s: %v", p.ID, err)
			res.Failures++
			continue
		}
		if level == types.EscalationNone {
			continue
		}
		res.Escalated++
		if s.audit != nil {
			err := s.audit.LogAudit(ctx, "escalation", map[string]any{
				"passId":    p.ID,
				"studentId": p.StudentID,
				"level":     string(level),
			})
			if err != nil {
				s.logger.Printf("sweep: audit escalation %s: %v", p.ID, err)
			}
		}
	}
}

func (s *Sweeper) archive(ctx context.Context, res *SweepResult) {
	cutoff := s.now().Add(-s.archiveAge)
	closed, err := s.passes.ArchivablePasses(ctx, cutoff)
	if err != nil {
		s.logger.Printf("sweep: list archivable passes: %v", err)
		res.Failures++
		return
	}
	for _, p := range closed {
		_, err := s.passes.ArchivePass(ctx, p.ID)
		switch {
		case err == nil:
			res.Archived++
		case errors.Is(err, ErrAlreadyArchived):
		default:
			s.logger.Printf("sweep: archive %s: %v", p.ID, err)
			res.Failures++
		}
	}
}

func (s *Sweeper) purge(ctx context.Context, res *SweepResult) {
	if s.retention <= 0 || s.audit == nil {
		return
	}
	cutoff := s.now().Add(-s.retention)
	n, err := s.audit.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Printf("sweep: purge audit: %v", err)
		res.Failures++
		return
	}
	res.Purged = n
}
