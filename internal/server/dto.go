package server

import (
	"govline/internal/domain"
	"govline/internal/engine"
)

// Request payloads

type CreateAreaRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sort_order,omitempty"`
}

type CreateUnitRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type RoutineRequest struct {
	AreaID      string   `json:"area_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Frequency   string   `json:"frequency" enum:"weekly,monthly,quarterly,yearly,event"`
	DayOfMonth  *int     `json:"day_of_month,omitempty"`
	Priority    string   `json:"priority,omitempty" enum:"low,medium,high,critical"`
	RiskScore   *int     `json:"risk_score,omitempty"`
	OwnerIDs    []string `json:"owner_ids,omitempty"`
	ScopeIDs    []string `json:"scope_ids,omitempty"`
	ApproverIDs []string `json:"approver_ids,omitempty"`
}

type EnsureCyclesRequest struct {
	From string `json:"from" format:"date"`
	To   string `json:"to" format:"date"`
}

type CreateCycleRequest struct {
	RoutineID string `json:"routine_id"`
	DueDate   string `json:"due_date" format:"date"`
	Notes     string `json:"notes,omitempty"`
}

type SetCycleStatusRequest struct {
	Status string  `json:"status" enum:"pending,in_progress,in_review,done,cancelled"`
	Notes  *string `json:"notes,omitempty"`
}

type DecisionRequest struct {
	Decision string `json:"decision" enum:"approved,rejected"`
	Comment  string `json:"comment,omitempty"`
}

type CreateEvidenceRequest struct {
	Type  string `json:"type" enum:"file,link,note"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Note  string `json:"note,omitempty"`
}

type CreateCommentRequest struct {
	Message string `json:"message"`
}

type UpdateProfileRequest struct {
	Role   string `json:"role" enum:"admin,director,owner,viewer"`
	Active *bool  `json:"active,omitempty"`
}

// Response payloads

type AreaResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sort_order"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type UnitResponse struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type RoutineResponse struct {
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
	ApproverIDs []string `json:"approver_ids,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type CycleResponse struct {
	ID            string  `json:"id"`
	RoutineID     string  `json:"routine_id"`
	DueDate       string  `json:"due_date" format:"date"`
	Status        string  `json:"status" enum:"pending,in_progress,in_review,done,cancelled"`
	Bucket        string  `json:"bucket,omitempty" enum:"late,due_soon,in_review,done,cancelled,on_track"`
	DaysRemaining *int    `json:"days_remaining,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy   *string `json:"completed_by,omitempty"`
	Notes         string  `json:"notes,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type CycleDetailResponse struct {
	CycleResponse
	Routine   RoutineResponse        `json:"routine"`
	Approvals []ApprovalStepResponse `json:"approvals,omitempty"`
}

type ApprovalStepResponse struct {
	Order       int     `json:"order"`
	UserID      string  `json:"user_id"`
	UserName    string  `json:"user_name,omitempty"`
	Status      string  `json:"status" enum:"pending,approved,rejected"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type EvidenceResponse struct {
	ID        string `json:"id"`
	CycleID   string `json:"cycle_id"`
	Type      string `json:"type" enum:"file,link,note"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CommentResponse struct {
	ID         string `json:"id"`
	CycleID    string `json:"cycle_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name,omitempty"`
	Message    string `json:"message"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type HistoryResponse struct {
	ID         int64  `json:"id"`
	ActorID    string `json:"actor_id"`
	ActorName  string `json:"actor_name,omitempty"`
	Action     string `json:"action"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Details    string `json:"details,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ProfileResponse struct {
	UserID    string `json:"user_id"`
	FullName  string `json:"full_name"`
	Role      string `json:"role" enum:"admin,director,owner,viewer"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type NotificationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind" enum:"info,warning,success,danger"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Mappers

func areaResponse(a domain.Area) AreaResponse {
	return AreaResponse{ID: a.ID, Name: a.Name, Description: a.Description, SortOrder: a.SortOrder, CreatedAt: a.CreatedAt}
}

func mapAreas(items []domain.Area) []AreaResponse {
	res := make([]AreaResponse, 0, len(items))
	for _, a := range items {
		res = append(res, areaResponse(a))
	}
	return res
}

func unitResponse(u domain.BusinessUnit) UnitResponse {
	return UnitResponse{ID: u.ID, Code: u.Code, Name: u.Name, CreatedAt: u.CreatedAt}
}

func mapUnits(items []domain.BusinessUnit) []UnitResponse {
	res := make([]UnitResponse, 0, len(items))
	for _, u := range items {
		res = append(res, unitResponse(u))
	}
	return res
}

func routineResponse(rt domain.Routine) RoutineResponse {
	return RoutineResponse{
		ID:          rt.ID,
		AreaID:      rt.AreaID,
		Title:       rt.Title,
		Description: rt.Description,
		Frequency:   rt.Frequency,
		DayOfMonth:  rt.DayOfMonth,
		Priority:    rt.Priority,
		IsActive:    rt.IsActive,
		RiskScore:   rt.RiskScore,
		OwnerIDs:    rt.OwnerIDs,
		ScopeIDs:    rt.ScopeIDs,
		ApproverIDs: rt.ApproverIDs,
		CreatedAt:   rt.CreatedAt,
	}
}

func mapRoutines(items []domain.Routine) []RoutineResponse {
	res := make([]RoutineResponse, 0, len(items))
	for _, rt := range items {
		res = append(res, routineResponse(rt))
	}
	return res
}

func cycleResponse(c domain.Cycle) CycleResponse {
	return CycleResponse{
		ID:          c.ID,
		RoutineID:   c.RoutineID,
		DueDate:     c.DueDate,
		Status:      c.Status,
		CompletedAt: c.CompletedAt,
		CompletedBy: c.CompletedBy,
		Notes:       c.Notes,
		CreatedAt:   c.CreatedAt,
	}
}

func cycleViewResponse(v engine.CycleView) CycleResponse {
	res := cycleResponse(v.Cycle)
	res.Bucket = string(v.Bucket)
	days := v.DaysRemaining
	res.DaysRemaining = &days
	return res
}

func mapCycleViews(items []engine.CycleView) []CycleResponse {
	res := make([]CycleResponse, 0, len(items))
	for _, v := range items {
		res = append(res, cycleViewResponse(v))
	}
	return res
}

func approvalStepResponse(s domain.ApprovalStep) ApprovalStepResponse {
	return ApprovalStepResponse{Order: s.Order, UserID: s.UserID, UserName: s.UserName, Status: s.Status, CompletedAt: s.CompletedAt}
}

func mapApprovalSteps(items []domain.ApprovalStep) []ApprovalStepResponse {
	res := make([]ApprovalStepResponse, 0, len(items))
	for _, s := range items {
		res = append(res, approvalStepResponse(s))
	}
	return res
}

func evidenceResponse(e domain.Evidence) EvidenceResponse {
	return EvidenceResponse{ID: e.ID, CycleID: e.CycleID, Type: e.Type, Title: e.Title, URL: e.URL, Note: e.Note, CreatedBy: e.CreatedBy, CreatedAt: e.CreatedAt}
}

func mapEvidences(items []domain.Evidence) []EvidenceResponse {
	res := make([]EvidenceResponse, 0, len(items))
	for _, e := range items {
		res = append(res, evidenceResponse(e))
	}
	return res
}

func commentResponse(c domain.Comment) CommentResponse {
	return CommentResponse{ID: c.ID, CycleID: c.CycleID, AuthorID: c.AuthorID, AuthorName: c.AuthorName, Message: c.Message, CreatedAt: c.CreatedAt}
}

func mapComments(items []domain.Comment) []CommentResponse {
	res := make([]CommentResponse, 0, len(items))
	for _, c := range items {
		res = append(res, commentResponse(c))
	}
	return res
}

func historyResponse(h domain.HistoryEntry) HistoryResponse {
	return HistoryResponse{
		ID:         h.ID,
		ActorID:    h.ActorID,
		ActorName:  h.ActorName,
		Action:     h.Action,
		FromStatus: h.FromStatus,
		ToStatus:   h.ToStatus,
		Details:    h.Details,
		CreatedAt:  h.CreatedAt,
	}
}

func mapHistory(items []domain.HistoryEntry) []HistoryResponse {
	res := make([]HistoryResponse, 0, len(items))
	for _, h := range items {
		res = append(res, historyResponse(h))
	}
	return res
}

func profileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse{UserID: p.UserID, FullName: p.FullName, Role: p.Role, Active: p.Active, CreatedAt: p.CreatedAt}
}

func mapProfiles(items []domain.Profile) []ProfileResponse {
	res := make([]ProfileResponse, 0, len(items))
	for _, p := range items {
		res = append(res, profileResponse(p))
	}
	return res
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{ID: n.ID, Title: n.Title, Message: n.Message, Kind: n.Kind, Read: n.Read, CreatedAt: n.CreatedAt}
}

func mapNotifications(items []domain.Notification) []NotificationResponse {
	res := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		res = append(res, notificationResponse(n))
	}
	return res
}
