package store

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var ErrNotFound = errors.New("not found")

type User struct {
	ID              Ref        `bson:"_id,omitempty" json:"_id"`
	Name            string     `bson:"name" json:"name"`
	Email           string     `bson:"email" json:"email"`
	Role            string     `bson:"role" json:"role"`
	Position        string     `bson:"position,omitempty" json:"position,omitempty"`
	DOB             string     `bson:"dob,omitempty" json:"dob,omitempty"`
	Phone           string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Address         string     `bson:"address,omitempty" json:"address,omitempty"`
	ProfileImage    string     `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	PasswordHash    string     `bson:"password,omitempty" json:"-"`
	AlreadyRegister bool       `bson:"alreadyRegister" json:"alreadyRegister"`
	Experience      Experience `bson:"experience" json:"experience"`
	CreatedAt       time.Time  `bson:"created_at" json:"created_at"`
}

// UserPatch carries the fields to $set; nil fields are left untouched.
type UserPatch struct {
	Name            *string
	Position        *string
	DOB             *string
	Phone           *string
	Address         *string
	ProfileImage    *string
	PasswordHash    *string
	AlreadyRegister *bool
	Experience      *Experience
}

type UserFilter struct {
	IDs          []Ref
	Roles        []string
	ExcludeRoles []string
	ExcludeIDs   []Ref
	Query        string
	Registered   *bool
}

type ExperienceEntry struct {
	Title   string `bson:"title" json:"title"`
	Project string `bson:"project" json:"project"`
	Time    string `bson:"time" json:"time"`
}

// Experience is a user's ledger of project roles. Some documents hold it as a
// JSON-encoded string; it is always written back as an array.
type Experience []ExperienceEntry

func (e Experience) MarshalBSONValue() (bsontype.Type, []byte, error) {
	entries := []ExperienceEntry(e)
	if entries == nil {
		entries = []ExperienceEntry{}
	}
	return bson.MarshalValue(entries)
}

func (e *Experience) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeArray:
		var entries []ExperienceEntry
		if err := raw.Unmarshal(&entries); err != nil {
			*e = Experience{}
			return nil
		}
		*e = Experience(entries)
	case bson.TypeString:
		*e = parseExperienceText(raw.StringValue())
	default:
		*e = Experience{}
	}
	return nil
}

func (e Experience) MarshalJSON() ([]byte, error) {
	entries := []ExperienceEntry(e)
	if entries == nil {
		entries = []ExperienceEntry{}
	}
	return json.Marshal(entries)
}

func (e *Experience) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*e = parseExperienceText(text)
		return nil
	}
	var entries []ExperienceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		*e = Experience{}
		return nil
	}
	*e = Experience(entries)
	return nil
}

func parseExperienceText(text string) Experience {
	var entries []ExperienceEntry
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return Experience{}
	}
	return Experience(entries)
}

// Stamp is a client-supplied timestamp kept as text. Legacy documents store
// a BSON datetime, which decodes to RFC 3339.
type Stamp string

func (s Stamp) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(string(s))
}

func (s *Stamp) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeString:
		*s = Stamp(raw.StringValue())
	case bson.TypeDateTime:
		*s = Stamp(raw.Time().UTC().Format(time.RFC3339))
	default:
		*s = ""
	}
	return nil
}

// Percent is a stored completion percentage. Older documents hold it as a
// double or a digit string; anything unreadable decodes as 0.
type Percent int

func (p Percent) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(int32(p))
}

func (p *Percent) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	var f float64
	switch t {
	case bson.TypeInt32:
		f = float64(raw.Int32())
	case bson.TypeInt64:
		f = float64(raw.Int64())
	case bson.TypeDouble:
		f = raw.Double()
	case bson.TypeString:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw.StringValue()), "%"))
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || strings.TrimLeft(s, "0123456789.") != "" {
			n = 0
		}
		f = n
	}
	switch {
	case math.IsNaN(f) || f <= 0:
		*p = 0
	case f >= 100:
		*p = 100
	default:
		*p = Percent(f)
	}
	return nil
}

type Project struct {
	ID          Ref       `bson:"_id,omitempty" json:"_id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description" json:"description"`
	LeaderID    Ref       `bson:"leader_id" json:"leader_id"`
	MemberIDs   []Ref     `bson:"member_ids" json:"member_ids"`
	StartAt     Stamp     `bson:"start_at,omitempty" json:"start_at,omitempty"`
	EndAt       Stamp     `bson:"end_at,omitempty" json:"end_at,omitempty"`
	Progress    Percent   `bson:"progress" json:"progress"`
	Status      string    `bson:"status" json:"status"`
	Confirm     int       `bson:"confirm" json:"confirm"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

type ProjectPatch struct {
	Name        *string
	Description *string
	LeaderID    *Ref
	MemberIDs   *[]Ref
	StartAt     *Stamp
	EndAt       *Stamp
	Progress    *int
	Status      *string
	Confirm     *int
}

func (p ProjectPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.LeaderID == nil && p.MemberIDs == nil &&
		p.StartAt == nil && p.EndAt == nil && p.Progress == nil && p.Status == nil && p.Confirm == nil
}

type ProjectFilter struct {
	LeaderID Ref
	MemberID Ref
	// ForUser matches projects the user leads or belongs to.
	ForUser Ref
}

type Task struct {
	ID          Ref       `bson:"_id,omitempty" json:"_id"`
	ProjectID   Ref       `bson:"project_id" json:"project_id"`
	AssigneeID  Ref       `bson:"assignee_id" json:"assignee_id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	StartAt     Stamp     `bson:"start_at,omitempty" json:"start_at,omitempty"`
	EndAt       Stamp     `bson:"end_at,omitempty" json:"end_at,omitempty"`
	Status      string    `bson:"status" json:"status"`
	Progress    Percent   `bson:"progress" json:"progress"`
	ProjectRole string    `bson:"project_role,omitempty" json:"project_role,omitempty"`
	CreatedBy   Ref       `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

type TaskPatch struct {
	AssigneeID  *Ref
	Title       *string
	Description *string
	StartAt     *Stamp
	EndAt       *Stamp
	Status      *string
	Progress    *int
	ProjectRole *string
}

type TaskFilter struct {
	ProjectID   Ref
	AssigneeID  Ref
	AssigneeIn  []Ref
	Status      string
	StatusNotIn []string
	HasEndAt    bool
}

type Notification struct {
	ID        Ref            `bson:"_id,omitempty" json:"_id"`
	ForUser   Ref            `bson:"for_user" json:"for_user"`
	Type      string         `bson:"type" json:"type"`
	Title     string         `bson:"title" json:"title"`
	Message   string         `bson:"message" json:"message"`
	Data      map[string]any `bson:"data" json:"data"`
	Read      bool           `bson:"read" json:"read"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

type Announcement struct {
	ID        Ref       `bson:"_id,omitempty" json:"_id"`
	Title     string    `bson:"title" json:"title"`
	Message   string    `bson:"message" json:"message"`
	SendTo    string    `bson:"sendTo" json:"sendTo"`
	ImageKey  string    `bson:"image,omitempty" json:"-"`
	ImageType string    `bson:"image_type,omitempty" json:"-"`
	CreatedBy Ref       `bson:"created_by" json:"created_by"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

type AnnouncementPatch struct {
	Title     *string
	Message   *string
	SendTo    *string
	ImageKey  *string
	ImageType *string
}

type Folder struct {
	ID        Ref       `bson:"_id,omitempty" json:"_id"`
	ProjectID Ref       `bson:"project_id" json:"project_id"`
	Name      string    `bson:"name" json:"name"`
	CreatedBy Ref       `bson:"created_by" json:"created_by"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type FileObject struct {
	ID          Ref       `bson:"_id,omitempty" json:"_id"`
	FolderID    Ref       `bson:"folder_id" json:"folder_id"`
	ProjectID   Ref       `bson:"project_id" json:"project_id"`
	Name        string    `bson:"name" json:"name"`
	ObjectKey   string    `bson:"object_key" json:"-"`
	ContentType string    `bson:"content_type" json:"content_type"`
	Size        int64     `bson:"size" json:"size"`
	UploadedBy  Ref       `bson:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Activity is one file-sharing history line.
type Activity struct {
	ID         Ref       `bson:"_id,omitempty" json:"_id"`
	ProjectID  Ref       `bson:"project_id" json:"project_id"`
	UserID     Ref       `bson:"user_id" json:"user_id"`
	Username   string    `bson:"username" json:"username"`
	Action     string    `bson:"action" json:"action"`
	FolderName string    `bson:"folder_name" json:"folder_name"`
	FileName   string    `bson:"file_name,omitempty" json:"file_name,omitempty"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}
