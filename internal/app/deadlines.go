package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"teamdesk/api/internal/metrics"
	"teamdesk/api/internal/notify"
	"teamdesk/api/internal/progress"
	"teamdesk/api/internal/store"
)

const notificationDeadline = "deadline"

type DeadlineScan struct {
	Days          int  `json:"days"`
	LookbackHours int  `json:"lookback_hours"`
	IncludeLeader bool `json:"include_leader"`
}

type DeadlineResult struct {
	Checked int `json:"checked"`
	Sent    int `json:"sent"`
}

// dueLayouts are tried after RFC 3339. Values without a zone are UTC.
var dueLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDue(value store.Stamp) (time.Time, bool) {
	text := strings.TrimSpace(string(value))
	if text == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t.UTC(), true
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ScanDeadlines sends at most one deadline reminder per task per UTC day for
// open tasks due within the window.
func (s *Service) ScanDeadlines(ctx context.Context, scan DeadlineScan) (DeadlineResult, error) {
	if scan.Days <= 0 {
		scan.Days = 7
	}
	if scan.LookbackHours < 0 {
		scan.LookbackHours = 0
	}
	now := s.now().UTC()
	from := now.Add(-time.Duration(scan.LookbackHours) * time.Hour)
	until := now.AddDate(0, 0, scan.Days)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{StatusNotIn: progress.DoneStatuses(), HasEndAt: true})
	if err != nil {
		return DeadlineResult{}, fmt.Errorf("load open tasks: %w", err)
	}

	var result DeadlineResult
	projects := map[store.Ref]store.Project{}
	for _, task := range tasks {
		if progress.IsDone(task.Status) {
			continue
		}
		due, ok := parseDue(task.EndAt)
		if !ok || due.Before(from) || due.After(until) {
			continue
		}
		result.Checked++

		sent, err := s.store.NotificationExists(ctx, notificationDeadline, task.ID, today)
		if err != nil {
			s.log.Warn().Str("task_id", task.ID.Hex()).Err(err).Msg("deadline dedupe check failed")
			continue
		}
		if sent {
			continue
		}

		project, ok := projects[task.ProjectID]
		if !ok {
			project, err = s.store.GetProject(ctx, task.ProjectID)
			if err != nil {
				s.log.Debug().Str("task_id", task.ID.Hex()).Err(err).Msg("deadline project missing")
				continue
			}
			projects[task.ProjectID] = project
		}

		recipients := []store.Ref{task.AssigneeID}
		if scan.IncludeLeader && project.LeaderID != task.AssigneeID {
			recipients = append(recipients, project.LeaderID)
		}
		out := s.notifier.NotifyUsers(ctx, store.UniqueRefs(recipients), deadlineMessage(project, task, due, now))
		result.Sent += out.Delivered
	}
	return result, nil
}

func deadlineMessage(project store.Project, task store.Task, due, now time.Time) notify.Message {
	title := fmt.Sprintf("Task due soon • %s", project.Name)
	body := fmt.Sprintf("'%s' is due %s.", task.Title, due.Format("Jan 2, 2006 15:04 UTC"))
	if due.Before(now) {
		title = fmt.Sprintf("Task overdue • %s", project.Name)
		body = fmt.Sprintf("'%s' was due %s.", task.Title, due.Format("Jan 2, 2006 15:04 UTC"))
	}
	return notify.Message{
		Kind:  notificationDeadline,
		Title: title,
		Body:  body,
		Data: map[string]any{
			"project_id": task.ProjectID.Hex(),
			"task_id":    task.ID.Hex(),
			"end_at":     due.Format(time.RFC3339),
		},
	}
}

// RunDeadlineScanner scans once after the bootstrap delay and then on every
// interval tick until ctx is done.
func (s *Service) RunDeadlineScanner(ctx context.Context) {
	scan := DeadlineScan{
		Days:          s.cfg.DeadlineWindowDays,
		LookbackHours: s.cfg.DeadlineLookbackHours,
		IncludeLeader: s.cfg.DeadlineIncludeLeader,
	}
	interval := s.cfg.DeadlineScanInterval
	if interval <= 0 {
		interval = time.Minute
	}

	bootstrap := time.NewTimer(s.cfg.DeadlineBootstrap)
	defer bootstrap.Stop()
	select {
	case <-ctx.Done():
		return
	case <-bootstrap.C:
	}
	s.scanOnce(ctx, scan)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx, scan)
		}
	}
}

func (s *Service) scanOnce(ctx context.Context, scan DeadlineScan) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("deadline scan panicked")
		}
	}()
	result, err := s.ScanDeadlines(ctx, scan)
	if err != nil {
		s.log.Warn().Err(err).Msg("deadline scan failed")
		return
	}
	metrics.RecordDeadlineReminders(result.Sent)
	if result.Sent > 0 {
		s.log.Info().Int("checked", result.Checked).Int("sent", result.Sent).Msg("deadline reminders sent")
	}
}
