package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"govline/internal/config"
	"govline/internal/domain"
	"govline/internal/events"
	"govline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.NewString()
}

// CreateArea registers a governance area.
func (e Engine) CreateArea(ctx context.Context, name, description string, sortOrder int, actorID string) (domain.Area, error) {
	if name == "" {
		return domain.Area{}, errors.New("name is required")
	}
	a := domain.Area{
		ID:          newID(),
		Name:        name,
		Description: description,
		SortOrder:   sortOrder,
		CreatedAt:   e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Area{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO governance_areas(id,name,description,sort_order,created_at) VALUES (?,?,?,?,?)`,
		a.ID, a.Name, nullable(a.Description), a.SortOrder, a.CreatedAt); err != nil {
		return domain.Area{}, fmt.Errorf("insert area: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "area.created", "area", a.ID, actorID, events.EventPayload{"name": a.Name}); err != nil {
		return domain.Area{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Area{}, err
	}
	return a, nil
}

// CreateUnit registers a business unit.
func (e Engine) CreateUnit(ctx context.Context, code, name, actorID string) (domain.BusinessUnit, error) {
	if code == "" || name == "" {
		return domain.BusinessUnit{}, errors.New("code and name are required")
	}
	u := domain.BusinessUnit{
		ID:        newID(),
		Code:      code,
		Name:      name,
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BusinessUnit{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO business_units(id,code,name,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Code, u.Name, u.CreatedAt); err != nil {
		return domain.BusinessUnit{}, fmt.Errorf("insert unit: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "unit.created", "unit", u.ID, actorID, events.EventPayload{"code": u.Code}); err != nil {
		return domain.BusinessUnit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.BusinessUnit{}, err
	}
	return u, nil
}

// RoutineOptions are parameters for creating or updating a routine.
type RoutineOptions struct {
	ID          string
	AreaID      string
	Title       string
	Description string
	Frequency   string
	DayOfMonth  *int
	Priority    string
	RiskScore   *int
	OwnerIDs    []string
	ScopeIDs    []string
	ApproverIDs []string
	ActorID     string
}

func (e Engine) validateRoutineOptions(opts RoutineOptions) error {
	if opts.Title == "" {
		return errors.New("title is required")
	}
	if opts.AreaID == "" {
		return errors.New("area is required")
	}
	switch opts.Frequency {
	case "weekly", "monthly", "quarterly", "yearly", "event":
	default:
		return fmt.Errorf("invalid frequency %q", opts.Frequency)
	}
	switch opts.Priority {
	case "", "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("invalid priority %q", opts.Priority)
	}
	if opts.DayOfMonth != nil && (*opts.DayOfMonth < 1 || *opts.DayOfMonth > 31) {
		return errors.New("day_of_month must be between 1 and 31")
	}
	if opts.RiskScore != nil && (*opts.RiskScore < 0 || *opts.RiskScore > 100) {
		return errors.New("risk_score must be between 0 and 100")
	}
	seen := map[string]bool{}
	for _, id := range opts.ApproverIDs {
		if id == "" {
			return errors.New("approver id must not be empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate approver %s", id)
		}
		seen[id] = true
	}
	return nil
}

// CreateRoutine registers a recurring governance obligation.
func (e Engine) CreateRoutine(ctx context.Context, opts RoutineOptions) (domain.Routine, error) {
	if err := e.validateRoutineOptions(opts); err != nil {
		return domain.Routine{}, err
	}
	if _, err := e.Repo.GetArea(ctx, opts.AreaID); err != nil {
		return domain.Routine{}, err
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	rt := domain.Routine{
		ID:          opts.ID,
		AreaID:      opts.AreaID,
		Title:       opts.Title,
		Description: opts.Description,
		Frequency:   opts.Frequency,
		DayOfMonth:  opts.DayOfMonth,
		Priority:    opts.Priority,
		IsActive:    true,
		RiskScore:   opts.RiskScore,
		OwnerIDs:    opts.OwnerIDs,
		ScopeIDs:    opts.ScopeIDs,
		ApproverIDs: opts.ApproverIDs,
		CreatedAt:   e.nowRFC3339(),
	}
	if rt.ID == "" {
		rt.ID = newID()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Routine{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRoutine(ctx, tx, rt); err != nil {
		return domain.Routine{}, fmt.Errorf("insert routine: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "routine.created", "routine", rt.ID, opts.ActorID, events.EventPayload{
		"title":     rt.Title,
		"frequency": rt.Frequency,
	}); err != nil {
		return domain.Routine{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Routine{}, err
	}
	return rt, nil
}

// UpdateRoutine replaces the mutable fields of a routine. Changing the
// approval chain never touches cycles already in review.
func (e Engine) UpdateRoutine(ctx context.Context, opts RoutineOptions) (domain.Routine, error) {
	if opts.ID == "" {
		return domain.Routine{}, errors.New("id is required")
	}
	current, err := e.Repo.GetRoutine(ctx, opts.ID)
	if err != nil {
		return domain.Routine{}, err
	}
	if err := e.validateRoutineOptions(opts); err != nil {
		return domain.Routine{}, err
	}
	if opts.Priority == "" {
		opts.Priority = current.Priority
	}
	rt := domain.Routine{
		ID:          current.ID,
		AreaID:      opts.AreaID,
		Title:       opts.Title,
		Description: opts.Description,
		Frequency:   opts.Frequency,
		DayOfMonth:  opts.DayOfMonth,
		Priority:    opts.Priority,
		IsActive:    current.IsActive,
		RiskScore:   opts.RiskScore,
		OwnerIDs:    opts.OwnerIDs,
		ScopeIDs:    opts.ScopeIDs,
		ApproverIDs: opts.ApproverIDs,
		CreatedAt:   current.CreatedAt,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Routine{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRoutine(ctx, tx, rt); err != nil {
		return domain.Routine{}, err
	}
	if err := e.Events.Append(ctx, tx, "routine.updated", "routine", rt.ID, opts.ActorID, events.EventPayload{"title": rt.Title}); err != nil {
		return domain.Routine{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Routine{}, err
	}
	return rt, nil
}

// SetRoutineActive toggles whether the generator produces new cycles for a
// routine. Existing cycles are left alone.
func (e Engine) SetRoutineActive(ctx context.Context, id string, active bool, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE routines SET is_active=? WHERE id=?`, boolToInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	evt := "routine.deactivated"
	if active {
		evt = "routine.activated"
	}
	if err := e.Events.Append(ctx, tx, evt, "routine", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// AddEvidence attaches a file reference, link, or note to a cycle.
func (e Engine) AddEvidence(ctx context.Context, ev domain.Evidence) (domain.Evidence, error) {
	switch ev.Type {
	case "file", "link", "note":
	default:
		return domain.Evidence{}, fmt.Errorf("invalid evidence type %q", ev.Type)
	}
	if _, err := e.Repo.GetCycle(ctx, ev.CycleID); err != nil {
		return domain.Evidence{}, err
	}
	if ev.ID == "" {
		ev.ID = newID()
	}
	ev.CreatedAt = e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Evidence{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEvidence(ctx, tx, ev); err != nil {
		return domain.Evidence{}, err
	}
	if err := e.Repo.AppendHistoryTx(ctx, tx, domain.HistoryEntry{
		CycleID:   ev.CycleID,
		ActorID:   ev.CreatedBy,
		Action:    "evidence_added",
		Details:   ev.Type,
		CreatedAt: ev.CreatedAt,
	}); err != nil {
		return domain.Evidence{}, err
	}
	if err := e.Events.Append(ctx, tx, "cycle.evidence_added", "cycle", ev.CycleID, ev.CreatedBy, events.EventPayload{"type": ev.Type}); err != nil {
		return domain.Evidence{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Evidence{}, err
	}
	return ev, nil
}

// AddComment appends a discussion comment to a cycle.
func (e Engine) AddComment(ctx context.Context, cycleID, authorID, message string) (domain.Comment, error) {
	if message == "" {
		return domain.Comment{}, errors.New("message is required")
	}
	if _, err := e.Repo.GetCycle(ctx, cycleID); err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        newID(),
		CycleID:   cycleID,
		AuthorID:  authorID,
		Message:   message,
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, err
	}
	if err := e.Events.Append(ctx, tx, "cycle.commented", "cycle", cycleID, authorID, nil); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
