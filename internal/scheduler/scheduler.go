package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/skynet-run/skynet/internal/channels"
	"github.com/skynet-run/skynet/internal/store"
)

const (
	tickInterval = 1 * time.Second
	onceLateMark = 1 * time.Hour
	missedCutoff = 24 * time.Hour
)

// Engine is the 1-second tick loop that fires due jobs and recovers missed
// runs across restarts.
type Engine struct {
	jobs     *store.ScheduledJobs
	senders  *channels.Registry
	shutdown chan struct{}
	done     chan struct{}
}

func NewEngine(jobs *store.ScheduledJobs, senders *channels.Registry) *Engine {
	return &Engine{jobs: jobs, senders: senders, shutdown: make(chan struct{}), done: make(chan struct{})}
}

// RecoverMissed scans enabled jobs overdue at startup and applies spec.md's
// three missed-run rules before the tick loop starts processing normally.
func (e *Engine) RecoverMissed(ctx context.Context) error {
	now := time.Now()
	due, err := e.jobs.DueJobs(ctx, now)
	if err != nil {
		return err
	}
	for _, j := range due {
		overdue := now.Sub(j.NextFire)
		switch j.ScheduleKind {
		case store.ScheduleOnce:
			lateMarker := ""
			if overdue > onceLateMark {
				lateMarker = "late by " + overdue.Round(time.Second).String()
			}
			e.fire(ctx, j, lateMarker)
		default:
			if overdue > missedCutoff {
				next, err := NextFire(j.ScheduleKind, j.ScheduleExpr, now)
				if err != nil {
					slog.Error("scheduler: recompute next_fire after missed run", "job", j.ID, "err", err)
					continue
				}
				if err := e.jobs.MarkFired(ctx, j.ID, j.NextFire, next, "Missed", true); err != nil {
					slog.Error("scheduler: mark missed job", "job", j.ID, "err", err)
				}
				continue
			}
			e.fire(ctx, j, "recovering most recently missed run")
		}
	}
	return nil
}

// Run blocks, ticking every tickInterval until Stop is called.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	due, err := e.jobs.DueJobs(ctx, time.Now())
	if err != nil {
		slog.Error("scheduler: query due jobs", "err", err)
		return
	}
	for _, j := range due {
		e.fire(ctx, j, "")
	}
}

func (e *Engine) fire(ctx context.Context, j store.ScheduledJob, note string) {
	message := j.ActionMessage
	if note != "" {
		message = message + " (" + note + ")"
	}

	err := e.senders.Send(ctx, j.ActionChannel, j.ActionRecipient, message, j.ActionPriority)
	status := "Completed"
	ok := true
	if err != nil {
		status = "Failed"
		ok = false
		if err == channels.ErrChannelOffline {
			status = "CHANNEL_OFFLINE"
		}
		slog.Warn("scheduler: dispatch failed", "job", j.ID, "channel", j.ActionChannel, "err", err)
	}

	now := time.Now()
	if j.ScheduleKind == store.ScheduleOnce {
		if err := e.jobs.SetEnabled(ctx, j.ID, false); err != nil {
			slog.Error("scheduler: disable once job", "job", j.ID, "err", err)
		}
		if err := e.jobs.MarkFired(ctx, j.ID, now, now, status, ok); err != nil {
			slog.Error("scheduler: mark once job fired", "job", j.ID, "err", err)
		}
		return
	}

	next, err := NextFire(j.ScheduleKind, j.ScheduleExpr, now)
	if err != nil {
		slog.Error("scheduler: compute next fire", "job", j.ID, "err", err)
		next = now.Add(tickInterval)
	}
	if err := e.jobs.MarkFired(ctx, j.ID, now, next, status, ok); err != nil {
		slog.Error("scheduler: mark job fired", "job", j.ID, "err", err)
	}
}

// Stop signals the run loop to finish its current tick and return; it
// blocks until the loop has actually exited, so in-flight dispatches from
// the final tick complete before shutdown proceeds.
func (e *Engine) Stop() {
	close(e.shutdown)
	<-e.done
}
