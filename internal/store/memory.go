package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps every collection in process. It backs tests and the
// TEAMDESK_STORE=memory mode, and mirrors MongoStore's ordering and matching.
type MemoryStore struct {
	mu            sync.RWMutex
	users         []User
	projects      []Project
	tasks         []Task
	notifications []Notification
	announcements []Announcement
	folders       []Folder
	files         []FileObject
	activity      []Activity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func indexOf[T any](items []T, match func(T) bool) int {
	for i, item := range items {
		if match(item) {
			return i
		}
	}
	return -1
}

func filterOut[T any](items []T, drop func(T) bool) ([]T, int64) {
	kept := items[:0]
	var removed int64
	for _, item := range items {
		if drop(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	return kept, removed
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(strings.TrimSpace(needle)))
}

func ensureID(id Ref) Ref {
	if id.IsZero() {
		return NewRef()
	}
	return id
}

// Users

func (s *MemoryStore) InsertUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = ensureID(user.ID)
	s.users = append(s.users, user)
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id Ref) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.users, func(u User) bool { return !id.IsZero() && u.ID == id })
	if i < 0 {
		return User{}, ErrNotFound
	}
	return s.users[i], nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.TrimSpace(email)
	i := indexOf(s.users, func(u User) bool { return email != "" && strings.EqualFold(u.Email, email) })
	if i < 0 {
		return User{}, ErrNotFound
	}
	return s.users[i], nil
}

func (s *MemoryStore) ListUsers(_ context.Context, filter UserFilter) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []User{}
	for _, u := range s.users {
		if filter.IDs != nil && !ContainsRef(filter.IDs, u.ID) {
			continue
		}
		if len(filter.Roles) > 0 && !containsString(filter.Roles, u.Role) {
			continue
		}
		if len(filter.ExcludeRoles) > 0 && containsString(filter.ExcludeRoles, u.Role) {
			continue
		}
		if ContainsRef(filter.ExcludeIDs, u.ID) {
			continue
		}
		if q := strings.TrimSpace(filter.Query); q != "" && !containsFold(u.Name, q) && !containsFold(u.Email, q) {
			continue
		}
		if filter.Registered != nil && u.AlreadyRegister != *filter.Registered {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func (s *MemoryStore) UpdateUser(_ context.Context, id Ref, patch UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.users, func(u User) bool { return !id.IsZero() && u.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	u := &s.users[i]
	assign(&u.Name, patch.Name)
	assign(&u.Position, patch.Position)
	assign(&u.DOB, patch.DOB)
	assign(&u.Phone, patch.Phone)
	assign(&u.Address, patch.Address)
	assign(&u.ProfileImage, patch.ProfileImage)
	assign(&u.PasswordHash, patch.PasswordHash)
	assign(&u.AlreadyRegister, patch.AlreadyRegister)
	if patch.Experience != nil {
		u.Experience = append(Experience{}, (*patch.Experience)...)
	}
	return nil
}

func assign[T any](dst *T, value *T) {
	if value != nil {
		*dst = *value
	}
}

func (s *MemoryStore) DeleteUser(_ context.Context, id Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.users, removed = filterOut(s.users, func(u User) bool { return u.ID == id })
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Projects

func (s *MemoryStore) InsertProject(_ context.Context, project Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	project.ID = ensureID(project.ID)
	project.MemberIDs = append([]Ref{}, project.MemberIDs...)
	s.projects = append(s.projects, project)
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id Ref) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.projects, func(p Project) bool { return !id.IsZero() && p.ID == id })
	if i < 0 {
		return Project{}, ErrNotFound
	}
	p := s.projects[i]
	p.MemberIDs = append([]Ref{}, p.MemberIDs...)
	return p, nil
}

func (s *MemoryStore) ListProjects(_ context.Context, filter ProjectFilter) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Project{}
	for _, p := range s.projects {
		if !filter.LeaderID.IsZero() && p.LeaderID != filter.LeaderID {
			continue
		}
		if !filter.MemberID.IsZero() && !ContainsRef(p.MemberIDs, filter.MemberID) {
			continue
		}
		if !filter.ForUser.IsZero() && p.LeaderID != filter.ForUser && !ContainsRef(p.MemberIDs, filter.ForUser) {
			continue
		}
		p.MemberIDs = append([]Ref{}, p.MemberIDs...)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateProject(_ context.Context, id Ref, patch ProjectPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.projects, func(p Project) bool { return !id.IsZero() && p.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	p := &s.projects[i]
	assign(&p.Name, patch.Name)
	assign(&p.Description, patch.Description)
	assign(&p.LeaderID, patch.LeaderID)
	if patch.MemberIDs != nil {
		p.MemberIDs = append([]Ref{}, (*patch.MemberIDs)...)
	}
	assign(&p.StartAt, patch.StartAt)
	assign(&p.EndAt, patch.EndAt)
	if patch.Progress != nil {
		p.Progress = Percent(*patch.Progress)
	}
	assign(&p.Status, patch.Status)
	assign(&p.Confirm, patch.Confirm)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, id Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.projects, removed = filterOut(s.projects, func(p Project) bool { return p.ID == id })
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Tasks

func (f TaskFilter) matches(t Task) bool {
	if !f.ProjectID.IsZero() && t.ProjectID != f.ProjectID {
		return false
	}
	if !f.AssigneeID.IsZero() && t.AssigneeID != f.AssigneeID {
		return false
	}
	if f.AssigneeIn != nil && !ContainsRef(f.AssigneeIn, t.AssigneeID) {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if containsString(f.StatusNotIn, t.Status) {
		return false
	}
	if f.HasEndAt && t.EndAt == "" {
		return false
	}
	return true
}

func (s *MemoryStore) InsertTask(_ context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = ensureID(task.ID)
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id Ref) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.tasks, func(t Task) bool { return !id.IsZero() && t.ID == id })
	if i < 0 {
		return Task{}, ErrNotFound
	}
	return s.tasks[i], nil
}

func (s *MemoryStore) ListTasks(_ context.Context, filter TaskFilter) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Task{}
	for _, t := range s.tasks {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, id Ref, patch TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.tasks, func(t Task) bool { return !id.IsZero() && t.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	t := &s.tasks[i]
	assign(&t.AssigneeID, patch.AssigneeID)
	assign(&t.Title, patch.Title)
	assign(&t.Description, patch.Description)
	assign(&t.StartAt, patch.StartAt)
	assign(&t.EndAt, patch.EndAt)
	assign(&t.Status, patch.Status)
	if patch.Progress != nil {
		t.Progress = Percent(*patch.Progress)
	}
	assign(&t.ProjectRole, patch.ProjectRole)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteTask(_ context.Context, id Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.tasks, removed = filterOut(s.tasks, func(t Task) bool { return t.ID == id })
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) DeleteTasks(_ context.Context, filter TaskFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.tasks, removed = filterOut(s.tasks, filter.matches)
	return removed, nil
}

// Notifications

func (s *MemoryStore) InsertNotification(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = ensureID(n.ID)
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, user Ref, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Notification{}
	for _, n := range s.notifications {
		if n.ForUser == user {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AllNotifications returns every stored notification in insertion order.
func (s *MemoryStore) AllNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification{}, s.notifications...)
}

func (s *MemoryStore) CountUnread(_ context.Context, user Ref) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, n := range s.notifications {
		if n.ForUser == user && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, user Ref) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var modified int64
	for i := range s.notifications {
		if s.notifications[i].ForUser == user && !s.notifications[i].Read {
			s.notifications[i].Read = true
			modified++
		}
	}
	return modified, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.notifications, func(n Notification) bool { return !id.IsZero() && n.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	s.notifications[i].Read = true
	return nil
}

func (s *MemoryStore) GetNotification(_ context.Context, id Ref) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.notifications, func(n Notification) bool { return !id.IsZero() && n.ID == id })
	if i < 0 {
		return Notification{}, ErrNotFound
	}
	return s.notifications[i], nil
}

func (s *MemoryStore) DeleteNotification(_ context.Context, id Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.notifications, removed = filterOut(s.notifications, func(n Notification) bool { return n.ID == id })
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) NotificationExists(_ context.Context, kind string, taskID Ref, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if n.Type != kind || n.CreatedAt.Before(since) {
			continue
		}
		if RefFrom(n.Data["task_id"]) == taskID {
			return true, nil
		}
	}
	return false, nil
}

// Announcements

func (s *MemoryStore) InsertAnnouncement(_ context.Context, a Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = ensureID(a.ID)
	s.announcements = append(s.announcements, a)
	return nil
}

func (s *MemoryStore) GetAnnouncement(_ context.Context, id Ref) (Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.announcements, func(a Announcement) bool { return !id.IsZero() && a.ID == id })
	if i < 0 {
		return Announcement{}, ErrNotFound
	}
	return s.announcements[i], nil
}

func (s *MemoryStore) ListAnnouncements(_ context.Context, limit int) ([]Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Announcement{}, s.announcements...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateAnnouncement(_ context.Context, id Ref, patch AnnouncementPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.announcements, func(a Announcement) bool { return !id.IsZero() && a.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	a := &s.announcements[i]
	assign(&a.Title, patch.Title)
	assign(&a.Message, patch.Message)
	assign(&a.SendTo, patch.SendTo)
	assign(&a.ImageKey, patch.ImageKey)
	assign(&a.ImageType, patch.ImageType)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteAnnouncement(_ context.Context, id Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.announcements, removed = filterOut(s.announcements, func(a Announcement) bool { return a.ID == id })
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Folders and files

func (s *MemoryStore) InsertFolder(_ context.Context, f Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = ensureID(f.ID)
	s.folders = append(s.folders, f)
	return nil
}

func (s *MemoryStore) GetFolder(_ context.Context, id Ref) (Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.folders, func(f Folder) bool { return !id.IsZero() && f.ID == id })
	if i < 0 {
		return Folder{}, ErrNotFound
	}
	return s.folders[i], nil
}

func (s *MemoryStore) ListFolders(_ context.Context, projectID Ref) ([]Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Folder{}
	for _, f := range s.folders {
		if f.ProjectID == projectID {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DeleteFolder(_ context.Context, id Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.folders, removed = filterOut(s.folders, func(f Folder) bool { return f.ID == id })
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) InsertFile(_ context.Context, f FileObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = ensureID(f.ID)
	s.files = append(s.files, f)
	return nil
}

func (s *MemoryStore) GetFile(_ context.Context, id Ref) (FileObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.files, func(f FileObject) bool { return !id.IsZero() && f.ID == id })
	if i < 0 {
		return FileObject{}, ErrNotFound
	}
	return s.files[i], nil
}

func (s *MemoryStore) ListFiles(_ context.Context, folderID Ref) ([]FileObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []FileObject{}
	for _, f := range s.files {
		if f.FolderID == folderID {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteFile(_ context.Context, id Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.files, removed = filterOut(s.files, func(f FileObject) bool { return f.ID == id })
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) DeleteFilesInFolder(_ context.Context, folderID Ref) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	s.files, removed = filterOut(s.files, func(f FileObject) bool { return f.FolderID == folderID })
	return removed, nil
}

func (s *MemoryStore) InsertActivity(_ context.Context, a Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = ensureID(a.ID)
	s.activity = append(s.activity, a)
	return nil
}

func (s *MemoryStore) ListActivity(_ context.Context, projectIDs []Ref, limit int) ([]Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Activity{}
	for _, a := range s.activity {
		if projectIDs != nil && !ContainsRef(projectIDs, a.ProjectID) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Text lookups

func (s *MemoryStore) SearchProjects(_ context.Context, text string, limit int) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Project{}
	for _, p := range s.projects {
		if containsFold(p.Name, text) || containsFold(p.Description, text) {
			out = append(out, p)
		}
	}
	return capped(out, limit), nil
}

func (s *MemoryStore) SearchTasks(_ context.Context, text string, limit int) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Task{}
	for _, t := range s.tasks {
		if containsFold(t.Title, text) || containsFold(t.Description, text) || containsFold(t.ProjectRole, text) {
			out = append(out, t)
		}
	}
	return capped(out, limit), nil
}

func (s *MemoryStore) SearchAnnouncements(_ context.Context, text string, limit int) ([]Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Announcement{}
	for _, a := range s.announcements {
		if containsFold(a.Title, text) || containsFold(a.Message, text) {
			out = append(out, a)
		}
	}
	return capped(out, limit), nil
}

func capped[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
