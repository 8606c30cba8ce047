package domain

type Profile struct {
	UserID    string `json:"user_id"`
	FullName  string `json:"full_name"`
	Role      string `json:"role" enum:"admin,director,owner,viewer"`
	Active    bool   `json:"active"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Area struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sort_order"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type BusinessUnit struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Routine struct {
	ID          string   `json:"id"`
	AreaID      string   `json:"area_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Frequency   string   `json:"frequency" enum:"weekly,monthly,quarterly,yearly,event"`
	DayOfMonth  *int     `json:"day_of_month,omitempty"`
	Priority    string   `json:"priority" enum:"low,medium,high,critical"`
	IsActive    bool     `json:"is_active"`
	RiskScore   *int     `json:"risk_score,omitempty"`
	OwnerIDs    []string `json:"owner_ids,omitempty"`
	ScopeIDs    []string `json:"scope_ids,omitempty"`
	// ApproverIDs is the ordered approval chain; empty means cycles of this
	// routine complete without review.
	ApproverIDs []string `json:"approver_ids,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

// HasApprovalChain reports whether cycles of this routine must pass review.
func (r Routine) HasApprovalChain() bool { return len(r.ApproverIDs) > 0 }

// Cycle statuses persisted in the database. "late" is never stored; it is a
// derived bucket computed against the current date at read time.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusInReview   = "in_review"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

type Cycle struct {
	ID          string  `json:"id"`
	RoutineID   string  `json:"routine_id"`
	DueDate     string  `json:"due_date" format:"date"`
	Status      string  `json:"status" enum:"pending,in_progress,in_review,done,cancelled"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy *string `json:"completed_by,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

const (
	StepPending  = "pending"
	StepApproved = "approved"
	StepRejected = "rejected"
)

type ApprovalStep struct {
	CycleID     string  `json:"cycle_id"`
	Order       int     `json:"order"`
	UserID      string  `json:"user_id"`
	UserName    string  `json:"user_name"`
	Status      string  `json:"status" enum:"pending,approved,rejected"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type Evidence struct {
	ID        string `json:"id"`
	CycleID   string `json:"cycle_id"`
	Type      string `json:"type" enum:"file,link,note"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID         string `json:"id"`
	CycleID    string `json:"cycle_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name,omitempty"`
	Message    string `json:"message"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// HistoryEntry is the per-cycle audit trail. Every lifecycle transition and
// approval decision appends exactly one entry in the same transaction.
type HistoryEntry struct {
	ID         int64  `json:"id"`
	CycleID    string `json:"cycle_id"`
	ActorID    string `json:"actor_id"`
	ActorName  string `json:"actor_name,omitempty"`
	Action     string `json:"action"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Details    string `json:"details,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind" enum:"info,warning,success,danger"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
