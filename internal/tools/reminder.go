package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skynet-run/skynet/internal/scheduler"
	"github.com/skynet-run/skynet/internal/store"
)

// Reminder registers the reminder tool: create/cancel/list scheduled jobs
// for the calling user, via the scheduler's persistence layer.
type Reminder struct {
	jobs   *store.ScheduledJobs
	userID func(ctx context.Context) string
}

func NewReminder(jobs *store.ScheduledJobs, userID func(ctx context.Context) string) *Reminder {
	return &Reminder{jobs: jobs, userID: userID}
}

func (rm *Reminder) Register(r *Registry) {
	r.Register("reminder", "Create, cancel, or list scheduled reminders", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":   map[string]interface{}{"type": "string", "enum": []string{"create", "cancel", "list"}},
			"name":     map[string]interface{}{"type": "string", "description": "Short label for the reminder"},
			"schedule": map[string]interface{}{"type": "string", "enum": []string{"once", "interval", "daily", "weekly", "cron"}},
			"expr":     map[string]interface{}{"type": "string", "description": "Schedule expression: RFC3339 timestamp (once), Go duration (interval), HH:MM (daily), 'Mon HH:MM' (weekly), or a 5-field cron expression"},
			"message":  map[string]interface{}{"type": "string", "description": "Message to deliver when the reminder fires"},
			"channel":   map[string]interface{}{"type": "string", "description": "Delivery channel for create"},
			"recipient": map[string]interface{}{"type": "string", "description": "Delivery recipient on that channel"},
			"job_id":    map[string]interface{}{"type": "string", "description": "Job id, for cancel"},
		},
		"required": []string{"action"},
	}, rm.run)
}

func (rm *Reminder) run(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	userID := rm.userID(ctx)

	switch action {
	case "create":
		return rm.create(ctx, userID, args)
	case "cancel":
		id, _ := args["job_id"].(string)
		if id == "" {
			return ErrorResult("job_id is required to cancel a reminder")
		}
		if err := rm.jobs.Remove(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrorResult("no such reminder")
			}
			return ErrorResult(fmt.Sprintf("failed to cancel reminder: %v", err))
		}
		return SilentResult("reminder cancelled")
	case "list":
		jobs, err := rm.jobs.ListForUser(ctx, userID)
		if err != nil {
			return ErrorResult(fmt.Sprintf("failed to list reminders: %v", err))
		}
		if len(jobs) == 0 {
			return SilentResult("no reminders")
		}
		var b strings.Builder
		for _, j := range jobs {
			fmt.Fprintf(&b, "%s\t%s\t%s %s\tnext: %s\n", j.ID, j.Name, j.ScheduleKind, j.ScheduleExpr, j.NextFire.Format(time.RFC3339))
		}
		return SilentResult(b.String())
	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}

func (rm *Reminder) create(ctx context.Context, userID string, args map[string]interface{}) *Result {
	name, _ := args["name"].(string)
	scheduleStr, _ := args["schedule"].(string)
	expr, _ := args["expr"].(string)
	message, _ := args["message"].(string)
	channel, _ := args["channel"].(string)
	recipient, _ := args["recipient"].(string)
	if name == "" || scheduleStr == "" || expr == "" || message == "" || channel == "" {
		return ErrorResult("name, schedule, expr, message, and channel are all required")
	}

	kind := store.ScheduleKind(scheduleStr)
	nextFire, err := scheduler.NextFire(kind, expr, time.Now())
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid schedule: %v", err))
	}

	job, err := rm.jobs.Create(ctx, store.ScheduledJob{
		UserID:        userID,
		Name:          name,
		ScheduleKind:  kind,
		ScheduleExpr:  expr,
		ActionMessage:   message,
		ActionChannel:   channel,
		ActionRecipient: recipient,
		Enabled:         true,
		NextFire:      nextFire,
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to create reminder: %v", err))
	}
	return SilentResult(fmt.Sprintf("reminder %q created (id %s), next fire %s", job.Name, job.ID, job.NextFire.Format(time.RFC3339)))
}
