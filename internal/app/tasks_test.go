package app

import (
	"context"
	"testing"

	"teamdesk/api/internal/store"
)

type team struct {
	admin, leader, a, b store.Ref
	project             store.Project
}

func newTeam(t *testing.T, f *fixture) team {
	t.Helper()
	tm := team{
		admin:  f.user(t, "ada", "admin"),
		leader: f.user(t, "lee", "leader"),
		a:      f.user(t, "amy", "member"),
		b:      f.user(t, "bob", "member"),
	}
	tm.project = f.project(t, "Apollo", tm.leader, tm.a, tm.b)
	return tm
}

func TestCreateTaskNotifiesAdminsAssigneeAndLeader(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	ctx := context.Background()

	result, err := f.svc.CreateTask(ctx, TaskInput{
		ProjectID:  strPtr(tm.project.ID.Hex()),
		AssigneeID: strPtr(tm.a.Hex()),
		Title:      strPtr("  Draft plan "),
	}, who(tm.admin, "ada"))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if result.Task.Title != "Draft plan" || result.Task.Status != "todo" || result.Task.Progress != 0 {
		t.Fatalf("unexpected task %+v", result.Task)
	}
	if result.Task.CreatedBy != tm.admin {
		t.Fatalf("created_by should default to the actor")
	}
	if f.notified(tm.admin, "task_assigned") != 1 {
		t.Fatalf("admin should get task_assigned")
	}
	if f.notified(tm.a, "you_were_assigned") != 1 {
		t.Fatalf("assignee should get you_were_assigned")
	}
	if f.notified(tm.leader, "task_assigned_in_your_project") != 1 {
		t.Fatalf("leader should get task_assigned_in_your_project")
	}
	ev, ok := f.broker.last(EventTaskCreated)
	if !ok || ev.room != tm.project.ID.Hex() {
		t.Fatalf("task:created should go to the project room, got %+v", ev)
	}

	var body string
	for _, n := range f.mem.AllNotifications() {
		if n.Type == "task_assigned" {
			body = n.Message
		}
	}
	if body != "ada assigned 'Draft plan' to amy." {
		t.Fatalf("unexpected task_assigned body %q", body)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	outsider := f.user(t, "oz", "member")

	tests := []struct {
		name string
		in   TaskInput
		want string
	}{
		{name: "bad project id", in: TaskInput{ProjectID: strPtr("nope"), AssigneeID: strPtr(tm.a.Hex()), Title: strPtr("x")}, want: "Invalid project_id or assignee_id"},
		{name: "missing title", in: TaskInput{ProjectID: strPtr(tm.project.ID.Hex()), AssigneeID: strPtr(tm.a.Hex()), Title: strPtr("  ")}, want: "Task title is required"},
		{name: "assignee outside project", in: TaskInput{ProjectID: strPtr(tm.project.ID.Hex()), AssigneeID: strPtr(outsider.Hex()), Title: strPtr("x")}, want: "Assignee must be a member of this project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTask(context.Background(), tt.in, who(tm.admin, "ada"))
			status, code, message, _ := mapError(err)
			if status != 400 || code != "VALIDATION_ERROR" || message != tt.want {
				t.Fatalf("expected 400 %q, got %d %s %q", tt.want, status, code, message)
			}
		})
	}
}

func TestCreateTaskLeaderAsAssigneeSkipsLeaderNotice(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	project := f.project(t, "Gemini", tm.leader, tm.leader, tm.a)

	_, err := f.svc.CreateTask(context.Background(), TaskInput{
		ProjectID:  strPtr(project.ID.Hex()),
		AssigneeID: strPtr(tm.leader.Hex()),
		Title:      strPtr("Review"),
	}, who(tm.admin, "ada"))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if f.notified(tm.leader, "task_assigned_in_your_project") != 0 {
		t.Fatalf("leader assigned to their own project task should not get the leader notice")
	}
	if f.notified(tm.leader, "you_were_assigned") != 1 {
		t.Fatalf("leader should still get you_were_assigned")
	}
}

func TestUpdateTaskCouplesStatusAndProgress(t *testing.T) {
	tests := []struct {
		name         string
		start        store.Task
		in           TaskInput
		wantStatus   string
		wantProgress int
	}{
		{name: "full progress completes", start: store.Task{Status: "todo"}, in: TaskInput{Progress: intPtr(100)}, wantStatus: "completed", wantProgress: 100},
		{name: "partial progress starts", start: store.Task{Status: "todo"}, in: TaskInput{Progress: intPtr(30)}, wantStatus: "in_progress", wantProgress: 30},
		{name: "done status fills progress", start: store.Task{Status: "in_progress", Progress: 40}, in: TaskInput{Status: strPtr("Done")}, wantStatus: "completed", wantProgress: 100},
		{name: "explicit status kept below 100", start: store.Task{Status: "todo"}, in: TaskInput{Status: strPtr("todo"), Progress: intPtr(30)}, wantStatus: "todo", wantProgress: 30},
		{name: "status reopens completed task", start: store.Task{Status: "completed", Progress: 100}, in: TaskInput{Status: strPtr("in_progress")}, wantStatus: "in_progress", wantProgress: 100},
		{name: "zero on completed task stays zero", start: store.Task{Status: "completed", Progress: 100}, in: TaskInput{Progress: intPtr(0)}, wantStatus: "completed", wantProgress: 0},
		{name: "100 overrides explicit status", start: store.Task{Status: "todo"}, in: TaskInput{Status: strPtr("in_progress"), Progress: intPtr(100)}, wantStatus: "completed", wantProgress: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tm := newTeam(t, f)
			task := f.task(t, tm.project, tm.a, int(tt.start.Progress), func(x *store.Task) { x.Status = tt.start.Status })

			result, err := f.svc.UpdateTask(context.Background(), task.ID, tt.in, who(tm.a, "amy"))
			if err != nil {
				t.Fatalf("UpdateTask failed: %v", err)
			}
			if result.Task.Status != tt.wantStatus || int(result.Task.Progress) != tt.wantProgress {
				t.Fatalf("got %s/%d, want %s/%d", result.Task.Status, result.Task.Progress, tt.wantStatus, tt.wantProgress)
			}
		})
	}
}

func TestUpdateTaskRejectsEmptyTitle(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	task := f.task(t, tm.project, tm.a, 0)

	_, err := f.svc.UpdateTask(context.Background(), task.ID, TaskInput{Title: strPtr(" ")}, who(tm.a, "amy"))
	_, code, message, _ := mapError(err)
	if code != "VALIDATION_ERROR" || message != "Title is required" {
		t.Fatalf("expected title validation error, got %s %q", code, message)
	}
}

// Two tasks, one per member. Completing them one after the other drives the
// project to 50% and then to 100% with completion.
func TestTaskCompletionFlowsToProject(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	ctx := context.Background()
	t1 := f.task(t, tm.project, tm.a, 0)
	t2 := f.task(t, tm.project, tm.b, 0)

	first, err := f.svc.UpdateTask(ctx, t1.ID, TaskInput{Progress: intPtr(100)}, who(tm.a, "amy"))
	if err != nil {
		t.Fatalf("UpdateTask T1 failed: %v", err)
	}
	if first.Task.Status != "completed" {
		t.Fatalf("T1 should be completed, got %s", first.Task.Status)
	}
	if first.Progress.New != 50 || !first.Progress.Changed {
		t.Fatalf("project should move to 50, got %+v", first.Progress)
	}
	if f.notified(tm.admin, "task_progress_changed") != 1 || f.notified(tm.admin, "task_completed") != 1 {
		t.Fatalf("admin should hear about T1 progress and completion")
	}
	if f.notified(tm.admin, "project_progress_changed") != 1 {
		t.Fatalf("admin should get exactly one project progress notice")
	}
	if f.notified(tm.leader, "member_task_progress_changed") != 1 || f.notified(tm.b, "member_task_progress_changed") != 1 {
		t.Fatalf("leader and the other member should hear about T1")
	}
	if f.notified(tm.a, "member_task_progress_changed") != 0 {
		t.Fatalf("the actor must not be notified about their own change")
	}
	if f.notified(tm.leader, "project_progress_changed") != 1 || f.notified(tm.a, "project_progress_changed") != 0 {
		t.Fatalf("project progress goes to the leader and members other than the actor")
	}
	if f.notified(tm.admin, "project_completed") != 0 {
		t.Fatalf("project is not complete yet")
	}

	second, err := f.svc.UpdateTask(ctx, t2.ID, TaskInput{Status: strPtr("completed")}, who(tm.b, "bob"))
	if err != nil {
		t.Fatalf("UpdateTask T2 failed: %v", err)
	}
	if second.Task.Progress != 100 || second.Progress.New != 100 {
		t.Fatalf("expected T2 and the project at 100, got task %d project %d", second.Task.Progress, second.Progress.New)
	}
	if f.notified(tm.admin, "project_completed") != 1 {
		t.Fatalf("admin should get project_completed once")
	}
	stored, err := f.mem.GetProject(ctx, tm.project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if stored.Progress != 100 {
		t.Fatalf("stored project progress should be 100, got %d", stored.Progress)
	}
	if got := f.broker.count(EventProjectProgress); got != 2 {
		t.Fatalf("expected two progress events, got %d", got)
	}
}

func TestUpdateTaskWithoutStateChangeSendsNoProgressNotices(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	task := f.task(t, tm.project, tm.a, 40, func(x *store.Task) { x.Status = "in_progress" })

	if _, err := f.svc.UpdateTask(context.Background(), task.ID, TaskInput{Description: strPtr("more detail")}, who(tm.a, "amy")); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	for _, kind := range []string{"member_task_progress_changed", "task_progress_changed", "task_completed"} {
		for _, n := range f.mem.AllNotifications() {
			if n.Type == kind {
				t.Fatalf("unexpected %s notification", kind)
			}
		}
	}
	if f.broker.count(EventTaskUpdated) != 1 {
		t.Fatalf("task:updated should still be emitted")
	}
}

func TestDeleteTaskRecomputesProject(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	ctx := context.Background()
	f.task(t, tm.project, tm.a, 100)
	doomed := f.task(t, tm.project, tm.b, 0)
	if _, err := f.svc.RecomputeProgress(ctx, tm.project.ID); err != nil {
		t.Fatalf("RecomputeProgress failed: %v", err)
	}

	result, err := f.svc.DeleteTask(ctx, doomed.ID, who(tm.admin, "ada"))
	if err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if result.Progress.New != 100 {
		t.Fatalf("project should be at 100 after deleting the open task, got %d", result.Progress.New)
	}
	ev, ok := f.broker.last(EventTaskDeleted)
	if !ok {
		t.Fatalf("task:deleted not emitted")
	}
	payload := ev.payload.(map[string]any)
	if payload["_id"] != doomed.ID.Hex() || payload["project_id"] != tm.project.ID.Hex() {
		t.Fatalf("unexpected task:deleted payload %v", payload)
	}
	if _, err := f.svc.GetTask(ctx, doomed.ID); err == nil {
		t.Fatalf("task should be gone")
	}
}
