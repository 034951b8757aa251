package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func all(conds []bson.M) bson.M {
	switch len(conds) {
	case 0:
		return bson.M{}
	case 1:
		return conds[0]
	default:
		list := make(bson.A, 0, len(conds))
		for _, c := range conds {
			list = append(list, c)
		}
		return bson.M{"$and": list}
	}
}

func containsPattern(text string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(strings.TrimSpace(text)), "$options": "i"}
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (T, error) {
	var out T
	err := coll.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	return out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return out, nil
}

func updateByID(ctx context.Context, coll *mongo.Collection, id Ref, set bson.M) error {
	if len(set) == 0 {
		return nil
	}
	res, err := coll.UpdateOne(ctx, MatchRef("_id", id), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s: %w", coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id Ref) error {
	res, err := coll.DeleteOne(ctx, MatchRef("_id", id))
	if err != nil {
		return fmt.Errorf("delete %s: %w", coll.Name(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Users

func (s *MongoStore) InsertUser(ctx context.Context, user User) error {
	if _, err := s.coll(collUsers).InsertOne(ctx, user); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, id Ref) (User, error) {
	if id.IsZero() {
		return User{}, ErrNotFound
	}
	return findOne[User](ctx, s.coll(collUsers), MatchRef("_id", id))
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, ErrNotFound
	}
	return findOne[User](ctx, s.coll(collUsers), bson.M{"email": bson.M{"$regex": "^" + regexp.QuoteMeta(email) + "$", "$options": "i"}})
}

func (s *MongoStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	var conds []bson.M
	if filter.IDs != nil {
		conds = append(conds, MatchAnyRef("_id", filter.IDs))
	}
	if len(filter.Roles) > 0 {
		conds = append(conds, bson.M{"role": bson.M{"$in": filter.Roles}})
	}
	if len(filter.ExcludeRoles) > 0 {
		conds = append(conds, bson.M{"role": bson.M{"$nin": filter.ExcludeRoles}})
	}
	if len(filter.ExcludeIDs) > 0 {
		conds = append(conds, bson.M{"_id": bson.M{"$nin": refValuesAll(filter.ExcludeIDs)}})
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		conds = append(conds, bson.M{"$or": bson.A{
			bson.M{"name": containsPattern(q)},
			bson.M{"email": containsPattern(q)},
		}})
	}
	if filter.Registered != nil {
		conds = append(conds, bson.M{"alreadyRegister": *filter.Registered})
	}
	return findAll[User](ctx, s.coll(collUsers), all(conds), options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
}

func (s *MongoStore) UpdateUser(ctx context.Context, id Ref, patch UserPatch) error {
	set := bson.M{}
	setString(set, "name", patch.Name)
	setString(set, "position", patch.Position)
	setString(set, "dob", patch.DOB)
	setString(set, "phone", patch.Phone)
	setString(set, "address", patch.Address)
	setString(set, "profileImage", patch.ProfileImage)
	setString(set, "password", patch.PasswordHash)
	if patch.AlreadyRegister != nil {
		set["alreadyRegister"] = *patch.AlreadyRegister
	}
	if patch.Experience != nil {
		set["experience"] = *patch.Experience
	}
	return updateByID(ctx, s.coll(collUsers), id, set)
}

func (s *MongoStore) DeleteUser(ctx context.Context, id Ref) error {
	return deleteByID(ctx, s.coll(collUsers), id)
}

func setString(set bson.M, key string, value *string) {
	if value != nil {
		set[key] = *value
	}
}

// Projects

func (s *MongoStore) InsertProject(ctx context.Context, project Project) error {
	if _, err := s.coll(collProjects).InsertOne(ctx, project); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *MongoStore) GetProject(ctx context.Context, id Ref) (Project, error) {
	if id.IsZero() {
		return Project{}, ErrNotFound
	}
	return findOne[Project](ctx, s.coll(collProjects), MatchRef("_id", id))
}

func (s *MongoStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	var conds []bson.M
	if !filter.LeaderID.IsZero() {
		conds = append(conds, MatchRef("leader_id", filter.LeaderID))
	}
	if !filter.MemberID.IsZero() {
		conds = append(conds, MatchRef("member_ids", filter.MemberID))
	}
	if !filter.ForUser.IsZero() {
		conds = append(conds, bson.M{"$or": bson.A{
			MatchRef("leader_id", filter.ForUser),
			MatchRef("member_ids", filter.ForUser),
		}})
	}
	return findAll[Project](ctx, s.coll(collProjects), all(conds), options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (s *MongoStore) UpdateProject(ctx context.Context, id Ref, patch ProjectPatch) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	setString(set, "name", patch.Name)
	setString(set, "description", patch.Description)
	setString(set, "status", patch.Status)
	if patch.LeaderID != nil {
		set["leader_id"] = *patch.LeaderID
	}
	if patch.MemberIDs != nil {
		members := *patch.MemberIDs
		if members == nil {
			members = []Ref{}
		}
		set["member_ids"] = members
	}
	if patch.StartAt != nil {
		set["start_at"] = *patch.StartAt
	}
	if patch.EndAt != nil {
		set["end_at"] = *patch.EndAt
	}
	if patch.Progress != nil {
		set["progress"] = *patch.Progress
	}
	if patch.Confirm != nil {
		set["confirm"] = *patch.Confirm
	}
	return updateByID(ctx, s.coll(collProjects), id, set)
}

func (s *MongoStore) DeleteProject(ctx context.Context, id Ref) error {
	return deleteByID(ctx, s.coll(collProjects), id)
}

// Tasks

func taskConditions(filter TaskFilter) bson.M {
	var conds []bson.M
	if !filter.ProjectID.IsZero() {
		conds = append(conds, MatchRef("project_id", filter.ProjectID))
	}
	if !filter.AssigneeID.IsZero() {
		conds = append(conds, MatchRef("assignee_id", filter.AssigneeID))
	}
	if filter.AssigneeIn != nil {
		conds = append(conds, MatchAnyRef("assignee_id", filter.AssigneeIn))
	}
	if filter.Status != "" {
		conds = append(conds, bson.M{"status": filter.Status})
	}
	if len(filter.StatusNotIn) > 0 {
		conds = append(conds, bson.M{"status": bson.M{"$nin": filter.StatusNotIn}})
	}
	if filter.HasEndAt {
		conds = append(conds, bson.M{"end_at": bson.M{"$exists": true, "$nin": bson.A{nil, ""}}})
	}
	return all(conds)
}

func (s *MongoStore) InsertTask(ctx context.Context, task Task) error {
	if _, err := s.coll(collTasks).InsertOne(ctx, task); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *MongoStore) GetTask(ctx context.Context, id Ref) (Task, error) {
	if id.IsZero() {
		return Task{}, ErrNotFound
	}
	return findOne[Task](ctx, s.coll(collTasks), MatchRef("_id", id))
}

func (s *MongoStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	return findAll[Task](ctx, s.coll(collTasks), taskConditions(filter), options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (s *MongoStore) UpdateTask(ctx context.Context, id Ref, patch TaskPatch) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	setString(set, "title", patch.Title)
	setString(set, "description", patch.Description)
	setString(set, "status", patch.Status)
	setString(set, "project_role", patch.ProjectRole)
	if patch.AssigneeID != nil {
		set["assignee_id"] = *patch.AssigneeID
	}
	if patch.StartAt != nil {
		set["start_at"] = *patch.StartAt
	}
	if patch.EndAt != nil {
		set["end_at"] = *patch.EndAt
	}
	if patch.Progress != nil {
		set["progress"] = *patch.Progress
	}
	return updateByID(ctx, s.coll(collTasks), id, set)
}

func (s *MongoStore) DeleteTask(ctx context.Context, id Ref) error {
	return deleteByID(ctx, s.coll(collTasks), id)
}

func (s *MongoStore) DeleteTasks(ctx context.Context, filter TaskFilter) (int64, error) {
	res, err := s.coll(collTasks).DeleteMany(ctx, taskConditions(filter))
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return res.DeletedCount, nil
}

// Notifications

func notificationOwner(user Ref) bson.M {
	return bson.M{"$or": bson.A{MatchRef("for_user", user), MatchRef("user_id", user)}}
}

func (s *MongoStore) InsertNotification(ctx context.Context, n Notification) error {
	if _, err := s.coll(collNotifications).InsertOne(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *MongoStore) ListNotifications(ctx context.Context, user Ref, limit int) ([]Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[Notification](ctx, s.coll(collNotifications), notificationOwner(user), opts)
}

func (s *MongoStore) CountUnread(ctx context.Context, user Ref) (int64, error) {
	filter := all([]bson.M{notificationOwner(user), {"read": bson.M{"$ne": true}}})
	count, err := s.coll(collNotifications).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, user Ref) (int64, error) {
	filter := all([]bson.M{notificationOwner(user), {"read": bson.M{"$ne": true}}})
	res, err := s.coll(collNotifications).UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, id Ref) error {
	return updateByID(ctx, s.coll(collNotifications), id, bson.M{"read": true})
}

func (s *MongoStore) GetNotification(ctx context.Context, id Ref) (Notification, error) {
	if id.IsZero() {
		return Notification{}, ErrNotFound
	}
	return findOne[Notification](ctx, s.coll(collNotifications), MatchRef("_id", id))
}

func (s *MongoStore) DeleteNotification(ctx context.Context, id Ref) error {
	return deleteByID(ctx, s.coll(collNotifications), id)
}

func (s *MongoStore) NotificationExists(ctx context.Context, kind string, taskID Ref, since time.Time) (bool, error) {
	filter := bson.M{
		"type":         kind,
		"data.task_id": bson.M{"$in": RefValues(taskID)},
		"created_at":   bson.M{"$gte": since},
	}
	count, err := s.coll(collNotifications).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("lookup notification: %w", err)
	}
	return count > 0, nil
}

// Announcements

func (s *MongoStore) InsertAnnouncement(ctx context.Context, a Announcement) error {
	if _, err := s.coll(collAnnouncements).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

func (s *MongoStore) GetAnnouncement(ctx context.Context, id Ref) (Announcement, error) {
	if id.IsZero() {
		return Announcement{}, ErrNotFound
	}
	return findOne[Announcement](ctx, s.coll(collAnnouncements), MatchRef("_id", id))
}

func (s *MongoStore) ListAnnouncements(ctx context.Context, limit int) ([]Announcement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[Announcement](ctx, s.coll(collAnnouncements), bson.M{}, opts)
}

func (s *MongoStore) UpdateAnnouncement(ctx context.Context, id Ref, patch AnnouncementPatch) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	setString(set, "title", patch.Title)
	setString(set, "message", patch.Message)
	setString(set, "sendTo", patch.SendTo)
	setString(set, "image", patch.ImageKey)
	setString(set, "image_type", patch.ImageType)
	return updateByID(ctx, s.coll(collAnnouncements), id, set)
}

func (s *MongoStore) DeleteAnnouncement(ctx context.Context, id Ref) error {
	return deleteByID(ctx, s.coll(collAnnouncements), id)
}

// Folders and files

func (s *MongoStore) InsertFolder(ctx context.Context, f Folder) error {
	if _, err := s.coll(collFolders).InsertOne(ctx, f); err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (s *MongoStore) GetFolder(ctx context.Context, id Ref) (Folder, error) {
	if id.IsZero() {
		return Folder{}, ErrNotFound
	}
	return findOne[Folder](ctx, s.coll(collFolders), MatchRef("_id", id))
}

func (s *MongoStore) ListFolders(ctx context.Context, projectID Ref) ([]Folder, error) {
	return findAll[Folder](ctx, s.coll(collFolders), MatchRef("project_id", projectID), options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
}

func (s *MongoStore) DeleteFolder(ctx context.Context, id Ref) error {
	return deleteByID(ctx, s.coll(collFolders), id)
}

func (s *MongoStore) InsertFile(ctx context.Context, f FileObject) error {
	if _, err := s.coll(collFiles).InsertOne(ctx, f); err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *MongoStore) GetFile(ctx context.Context, id Ref) (FileObject, error) {
	if id.IsZero() {
		return FileObject{}, ErrNotFound
	}
	return findOne[FileObject](ctx, s.coll(collFiles), MatchRef("_id", id))
}

func (s *MongoStore) ListFiles(ctx context.Context, folderID Ref) ([]FileObject, error) {
	return findAll[FileObject](ctx, s.coll(collFiles), MatchRef("folder_id", folderID), options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (s *MongoStore) DeleteFile(ctx context.Context, id Ref) error {
	return deleteByID(ctx, s.coll(collFiles), id)
}

func (s *MongoStore) DeleteFilesInFolder(ctx context.Context, folderID Ref) (int64, error) {
	res, err := s.coll(collFiles).DeleteMany(ctx, MatchRef("folder_id", folderID))
	if err != nil {
		return 0, fmt.Errorf("delete files: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) InsertActivity(ctx context.Context, a Activity) error {
	if _, err := s.coll(collHistories).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest entries first. A nil projectIDs lists all.
func (s *MongoStore) ListActivity(ctx context.Context, projectIDs []Ref, limit int) ([]Activity, error) {
	filter := bson.M{}
	if projectIDs != nil {
		filter = MatchAnyRef("project_id", projectIDs)
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[Activity](ctx, s.coll(collHistories), filter, opts)
}

// Text lookups used when the search index is unavailable.

func (s *MongoStore) SearchProjects(ctx context.Context, text string, limit int) ([]Project, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"name": containsPattern(text)},
		bson.M{"description": containsPattern(text)},
	}}
	return findAll[Project](ctx, s.coll(collProjects), filter, options.Find().SetLimit(int64(limit)))
}

func (s *MongoStore) SearchTasks(ctx context.Context, text string, limit int) ([]Task, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"title": containsPattern(text)},
		bson.M{"description": containsPattern(text)},
		bson.M{"project_role": containsPattern(text)},
	}}
	return findAll[Task](ctx, s.coll(collTasks), filter, options.Find().SetLimit(int64(limit)))
}

func (s *MongoStore) SearchAnnouncements(ctx context.Context, text string, limit int) ([]Announcement, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"title": containsPattern(text)},
		bson.M{"message": containsPattern(text)},
	}}
	return findAll[Announcement](ctx, s.coll(collAnnouncements), filter, options.Find().SetLimit(int64(limit)))
}
