package domain

// TimeLayout is fixed width so that stored timestamps sort lexically in time order.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

type Role string

const (
	RoleAdmin         Role = "admin"
	RoleBuyer         Role = "buyer"
	RoleProblemSolver Role = "problem_solver"
	RoleUser          Role = "user"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleBuyer, RoleProblemSolver, RoleUser:
		return true
	}
	return false
}

type Profile struct {
	Bio        string   `json:"bio,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Experience string   `json:"experience,omitempty"`
	Portfolio  string   `json:"portfolio,omitempty"`
}

type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`
	Role         Role     `json:"role" enum:"admin,buyer,problem_solver,user"`
	Profile      *Profile `json:"profile,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
}

type ProjectStatus string

const (
	ProjectOpen       ProjectStatus = "open"
	ProjectAssigned   ProjectStatus = "assigned"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Budget      *float64      `json:"budget,omitempty"`
	Deadline    *string       `json:"deadline,omitempty"`
	Skills      []string      `json:"skills"`
	Status      ProjectStatus `json:"status" enum:"open,assigned,in_progress,completed,cancelled"`
	BuyerID     string        `json:"buyer_id"`
	AssignedTo  *string       `json:"assigned_to,omitempty"`
	Attachments []string      `json:"attachments"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type Request struct {
	ID              string        `json:"id"`
	ProjectID       string        `json:"project_id"`
	ProblemSolverID string        `json:"problem_solver_id"`
	Message         string        `json:"message,omitempty"`
	Status          RequestStatus `json:"status" enum:"pending,accepted,rejected"`
	CreatedAt       string        `json:"created_at" format:"date-time"`
	UpdatedAt       string        `json:"updated_at" format:"date-time"`
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskSubmitted  TaskStatus = "submitted"
	TaskCompleted  TaskStatus = "completed"
	TaskRejected   TaskStatus = "rejected"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type TaskMetadata struct {
	Priority Priority `json:"priority" enum:"low,medium,high"`
	Tags     []string `json:"tags"`
	Notes    string   `json:"notes,omitempty"`
}

type Task struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	CreatedBy   string       `json:"created_by"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Deadline    *string      `json:"deadline,omitempty"`
	Status      TaskStatus   `json:"status" enum:"todo,in_progress,submitted,completed,rejected"`
	Metadata    TaskMetadata `json:"metadata"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	UpdatedAt   string       `json:"updated_at" format:"date-time"`
}

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
)

type Submission struct {
	ID          string           `json:"id"`
	TaskID      string           `json:"task_id"`
	ProjectID   string           `json:"project_id"`
	SubmittedBy string           `json:"submitted_by"`
	FileName    string           `json:"file_name"`
	FilePath    string           `json:"file_path"`
	FileSize    int64            `json:"file_size"`
	Notes       string           `json:"notes,omitempty"`
	Status      SubmissionStatus `json:"status" enum:"pending,accepted,rejected"`
	ReviewNote  string           `json:"review_note,omitempty"`
	CreatedAt   string           `json:"created_at" format:"date-time"`
	UpdatedAt   string           `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
