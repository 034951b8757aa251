package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject      ResultType = "project"
	ResultTask         ResultType = "task"
	ResultAnnouncement ResultType = "announcement"
)

// ParseResultType maps a query parameter to a result type. Unknown values
// mean all types.
func ParseResultType(value string) ResultType {
	switch ResultType(value) {
	case ResultProject, ResultTask, ResultAnnouncement:
		return ResultType(value)
	default:
		return ""
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId,omitempty"`
	Status    string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	LeaderID    string `json:"leaderId"`
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	AssigneeID  string `json:"assigneeId"`
	Status      string `json:"status"`
}

// AnnouncementRecord is the data we index for an announcement.
type AnnouncementRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	SendTo  string `json:"sendTo"`
}

func wants(q Query, t ResultType) bool {
	return q.FilterType == "" || q.FilterType == t
}

func limitOf(q Query) int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}
