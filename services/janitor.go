package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/careerquest/backend/repository"
)

// SessionJanitor periodically reaps interview sessions that were started but
// never finished: the candidate closed the tab, lost connectivity, or simply
// walked away. Abandoned sessions keep their partial history but stop
// accepting answers.
type SessionJanitor struct {
	repo         *repository.GORMRepository
	abandonAfter time.Duration
	interval     time.Duration
	stop         chan struct{}
}

func NewSessionJanitor(repo *repository.GORMRepository, cfg InterviewConfig) *SessionJanitor {
	abandonAfter := cfg.AbandonAfter
	if abandonAfter <= 0 {
		abandonAfter = 30 * time.Minute
	}
	interval := cfg.JanitorInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SessionJanitor{
		repo:         repo,
		abandonAfter: abandonAfter,
		interval:     interval,
		stop:         make(chan struct{}),
	}
}

// Start runs the reaping loop until Stop is called.
func (j *SessionJanitor) Start() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("Session janitor started", "interval", j.interval, "abandon_after", j.abandonAfter)

	for {
		select {
		case <-ticker.C:
			j.reap()
		case <-j.stop:
			slog.Info("Session janitor stopped")
			return
		}
	}
}

// Stop terminates the reaping loop.
func (j *SessionJanitor) Stop() {
	close(j.stop)
}

func (j *SessionJanitor) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.abandonAfter)
	ids, err := j.repo.StaleInProgressSessions(ctx, cutoff)
	if err != nil {
		slog.Error("Janitor failed to query stale sessions", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	slog.Info("Janitor reaping stale sessions", "count", len(ids), "cutoff", cutoff)
	for _, id := range ids {
		if err := j.repo.MarkSessionAbandoned(ctx, id); err != nil {
			slog.Error("Janitor failed to mark session abandoned", "error", err, "session_id", id)
		}
	}
}
