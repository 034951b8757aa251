package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"teamdesk/api/internal/authpw"
	"teamdesk/api/internal/blob"
	"teamdesk/api/internal/config"
	"teamdesk/api/internal/notify"
	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/search"
	"teamdesk/api/internal/store"
)

// DataStore is the document store the service runs on. store.MongoStore and
// store.MemoryStore both satisfy it.
type DataStore interface {
	Ping(context.Context) error

	InsertUser(context.Context, store.User) error
	GetUser(context.Context, store.Ref) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListUsers(context.Context, store.UserFilter) ([]store.User, error)
	UpdateUser(context.Context, store.Ref, store.UserPatch) error
	DeleteUser(context.Context, store.Ref) error

	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, store.Ref) (store.Project, error)
	ListProjects(context.Context, store.ProjectFilter) ([]store.Project, error)
	UpdateProject(context.Context, store.Ref, store.ProjectPatch) error
	DeleteProject(context.Context, store.Ref) error

	InsertTask(context.Context, store.Task) error
	GetTask(context.Context, store.Ref) (store.Task, error)
	ListTasks(context.Context, store.TaskFilter) ([]store.Task, error)
	UpdateTask(context.Context, store.Ref, store.TaskPatch) error
	DeleteTask(context.Context, store.Ref) error
	DeleteTasks(context.Context, store.TaskFilter) (int64, error)

	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, store.Ref, int) ([]store.Notification, error)
	CountUnread(context.Context, store.Ref) (int64, error)
	MarkAllRead(context.Context, store.Ref) (int64, error)
	MarkRead(context.Context, store.Ref) error
	GetNotification(context.Context, store.Ref) (store.Notification, error)
	DeleteNotification(context.Context, store.Ref) error
	NotificationExists(ctx context.Context, kind string, taskID store.Ref, since time.Time) (bool, error)

	InsertAnnouncement(context.Context, store.Announcement) error
	GetAnnouncement(context.Context, store.Ref) (store.Announcement, error)
	ListAnnouncements(context.Context, int) ([]store.Announcement, error)
	UpdateAnnouncement(context.Context, store.Ref, store.AnnouncementPatch) error
	DeleteAnnouncement(context.Context, store.Ref) error

	InsertFolder(context.Context, store.Folder) error
	GetFolder(context.Context, store.Ref) (store.Folder, error)
	ListFolders(context.Context, store.Ref) ([]store.Folder, error)
	DeleteFolder(context.Context, store.Ref) error
	InsertFile(context.Context, store.FileObject) error
	GetFile(context.Context, store.Ref) (store.FileObject, error)
	ListFiles(context.Context, store.Ref) ([]store.FileObject, error)
	DeleteFile(context.Context, store.Ref) error
	DeleteFilesInFolder(context.Context, store.Ref) (int64, error)
	InsertActivity(context.Context, store.Activity) error
	ListActivity(context.Context, []store.Ref, int) ([]store.Activity, error)

	search.Source
}

// Mailer sends the welcome email for new members. *email.Service
// satisfies it.
type Mailer interface {
	SendWelcome(to, name, position string) error
}

// Deps are the collaborators a Service is built from. Without Search the
// store scan answers queries. Without Blobs file sharing and announcement
// images report unavailable. Without Mailer no welcome email is sent.
type Deps struct {
	Store    DataStore
	Realtime realtime.Broker
	Search   *search.Service
	Blobs    blob.Store
	Mailer   Mailer
	Log      zerolog.Logger
	Now      func() time.Time
}

type Service struct {
	cfg      config.Config
	store    DataStore
	rt       realtime.Broker
	notifier *notify.Dispatcher
	accounts *authpw.Service
	search   *search.Service
	blobs    blob.Store
	mailer   Mailer
	log      zerolog.Logger
	now      func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	rt := deps.Realtime
	if rt == nil {
		rt = realtime.NewHub()
	}
	searcher := deps.Search
	if searcher == nil {
		searcher = search.NewService(nil, search.NewStoreSearch(deps.Store), deps.Log)
	}
	log := deps.Log.With().Str("component", "app").Logger()
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		rt:       rt,
		notifier: notify.NewDispatcher(deps.Store, rt, deps.Log).WithClock(now),
		accounts: authpw.NewService(deps.Store, cfg.DefaultMemberPassword),
		search:   searcher,
		blobs:    deps.Blobs,
		mailer:   deps.Mailer,
		log:      log,
		now:      now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Realtime exposes the broker for the event stream endpoint.
func (s *Service) Realtime() realtime.Subscriber {
	return s.rt
}

// emit publishes a realtime event with a short timeout. A failure is
// recorded in effects and never returned.
func (s *Service) emit(ctx context.Context, effects *Effects, event string, payload any, room string) {
	emitCtx, cancel := context.WithTimeout(ctx, s.emitTimeout())
	defer cancel()
	effects.record("emit "+event, s.rt.Emit(emitCtx, event, payload, room))
}

func (s *Service) emitTimeout() time.Duration {
	if s.cfg.RealtimeEmitTimeout > 0 {
		return s.cfg.RealtimeEmitTimeout
	}
	return 2 * time.Second
}

// finish logs every failed side effect of an operation.
func (s *Service) finish(op string, effects Effects) {
	for _, e := range effects.Failed() {
		s.log.Warn().Str("op", op).Str("effect", e.Name).Err(e.Err).Msg("side effect failed")
	}
}

func (s *Service) userName(ctx context.Context, id store.Ref) string {
	if id.IsZero() {
		return ""
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
