package repo

import (
	"context"
	"database/sql"
	"strings"

	"govline/internal/domain"
)

const cycleColumns = `c.id,c.routine_id,c.due_date,c.status,c.completed_at,c.completed_by,COALESCE(c.notes,'') AS notes,c.created_at`

func scanCycle(scan func(dest ...any) error) (domain.Cycle, error) {
	var c domain.Cycle
	var completedAt, completedBy sql.NullString
	err := scan(&c.ID, &c.RoutineID, &c.DueDate, &c.Status, &completedAt, &completedBy, &c.Notes, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.String
	}
	if completedBy.Valid {
		c.CompletedBy = &completedBy.String
	}
	return c, nil
}

// InsertCycleIfAbsent inserts a cycle unless one already exists for the same
// routine and due date. Reports whether a row was written.
func (r Repo) InsertCycleIfAbsent(ctx context.Context, tx *sql.Tx, c domain.Cycle) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO cycles(id,routine_id,due_date,status,completed_at,completed_by,notes,created_at)
VALUES (?,?,?,?,?,?,?,?) ON CONFLICT(routine_id,due_date) DO NOTHING`,
		c.ID, c.RoutineID, c.DueDate, c.Status, nullableStringPtr(c.CompletedAt), nullableStringPtr(c.CompletedBy), nullable(c.Notes), c.CreatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) GetCycle(ctx context.Context, id string) (domain.Cycle, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles c WHERE c.id=?`, id)
	c, err := scanCycle(row.Scan)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetCycleTx(ctx context.Context, tx *sql.Tx, id string) (domain.Cycle, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles c WHERE c.id=?`, id)
	c, err := scanCycle(row.Scan)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

type CycleFilters struct {
	RoutineID string
	AreaID    string
	OwnerID   string
	Status    string
	From      string
	To        string
	Search    string
	Limit     int
}

func (r Repo) ListCycles(ctx context.Context, f CycleFilters) ([]domain.Cycle, error) {
	var clauses []string
	var args []any
	if f.RoutineID != "" {
		clauses = append(clauses, "c.routine_id=?")
		args = append(args, f.RoutineID)
	}
	if f.AreaID != "" {
		clauses = append(clauses, "r.area_id=?")
		args = append(args, f.AreaID)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "c.routine_id IN (SELECT routine_id FROM routine_owners WHERE user_id=?)")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "c.status=?")
		args = append(args, f.Status)
	}
	if f.From != "" {
		clauses = append(clauses, "c.due_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "c.due_date <= ?")
		args = append(args, f.To)
	}
	if f.Search != "" {
		clauses = append(clauses, "r.title LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}
	query := `SELECT ` + cycleColumns + ` FROM cycles c JOIN routines r ON r.id=c.routine_id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY c.due_date, r.title"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Cycle
	for rows.Next() {
		c, err := scanCycle(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateCycleStatusTx(ctx context.Context, tx *sql.Tx, id, status string, completedAt, completedBy *string, notes *string) error {
	fields := []string{"status=?", "completed_at=?", "completed_by=?"}
	args := []any{status, nullableStringPtr(completedAt), nullableStringPtr(completedBy)}
	if notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, nullable(*notes))
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE cycles SET `+strings.Join(fields, ", ")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceApprovalStepsTx drops any existing steps for the cycle and writes the
// given chain fresh, all pending.
func (r Repo) ReplaceApprovalStepsTx(ctx context.Context, tx *sql.Tx, cycleID string, steps []domain.ApprovalStep) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM approval_steps WHERE cycle_id=?`, cycleID); err != nil {
		return err
	}
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, `INSERT INTO approval_steps(cycle_id,ord,user_id,user_name,status,completed_at) VALUES (?,?,?,?,?,?)`,
			cycleID, s.Order, s.UserID, s.UserName, s.Status, nullableStringPtr(s.CompletedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListApprovalSteps(ctx context.Context, cycleID string) ([]domain.ApprovalStep, error) {
	return listApprovalSteps(ctx, r.DB.QueryContext, cycleID)
}

func (r Repo) ListApprovalStepsTx(ctx context.Context, tx *sql.Tx, cycleID string) ([]domain.ApprovalStep, error) {
	return listApprovalSteps(ctx, tx.QueryContext, cycleID)
}

func listApprovalSteps(ctx context.Context, query func(ctx context.Context, q string, args ...any) (*sql.Rows, error), cycleID string) ([]domain.ApprovalStep, error) {
	rows, err := query(ctx, `SELECT cycle_id,ord,user_id,user_name,status,completed_at FROM approval_steps WHERE cycle_id=? ORDER BY ord`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ApprovalStep
	for rows.Next() {
		var s domain.ApprovalStep
		var completedAt sql.NullString
		if err := rows.Scan(&s.CycleID, &s.Order, &s.UserID, &s.UserName, &s.Status, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			s.CompletedAt = &completedAt.String
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateApprovalStepTx(ctx context.Context, tx *sql.Tx, cycleID string, ord int, status string, completedAt *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE approval_steps SET status=?, completed_at=? WHERE cycle_id=? AND ord=?`,
		status, nullableStringPtr(completedAt), cycleID, ord)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AppendHistoryTx(ctx context.Context, tx *sql.Tx, h domain.HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cycle_history(cycle_id,actor_id,actor_name,action,from_status,to_status,details,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		h.CycleID, h.ActorID, nullable(h.ActorName), h.Action, nullable(h.FromStatus), nullable(h.ToStatus), nullable(h.Details), h.CreatedAt)
	return err
}

func (r Repo) ListHistory(ctx context.Context, cycleID string) ([]domain.HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,cycle_id,actor_id,COALESCE(actor_name,''),action,COALESCE(from_status,''),COALESCE(to_status,''),COALESCE(details,''),created_at
FROM cycle_history WHERE cycle_id=? ORDER BY id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.CycleID, &h.ActorID, &h.ActorName, &h.Action, &h.FromStatus, &h.ToStatus, &h.Details, &h.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) InsertEvidence(ctx context.Context, tx *sql.Tx, e domain.Evidence) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO evidences(id,cycle_id,type,title,url,note,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.CycleID, e.Type, nullable(e.Title), nullable(e.URL), nullable(e.Note), e.CreatedBy, e.CreatedAt)
	return err
}

func (r Repo) ListEvidences(ctx context.Context, cycleID string) ([]domain.Evidence, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,cycle_id,type,COALESCE(title,''),COALESCE(url,''),COALESCE(note,''),created_by,created_at
FROM evidences WHERE cycle_id=? ORDER BY created_at, id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Evidence
	for rows.Next() {
		var e domain.Evidence
		if err := rows.Scan(&e.ID, &e.CycleID, &e.Type, &e.Title, &e.URL, &e.Note, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) DeleteEvidence(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM evidences WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,cycle_id,author_id,message,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.CycleID, c.AuthorID, c.Message, c.CreatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, cycleID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT m.id,m.cycle_id,m.author_id,COALESCE(p.full_name,''),m.message,m.created_at
FROM comments m LEFT JOIN profiles p ON p.user_id=m.author_id WHERE m.cycle_id=? ORDER BY m.created_at, m.id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.CycleID, &c.AuthorID, &c.AuthorName, &c.Message, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertNotificationTx(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,user_id,title,message,kind,read,created_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Kind, boolToInt(n.Read), n.CreatedAt)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT id,user_id,title,message,kind,read,created_at FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Kind, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EventsAfter returns up to limit events with id greater than cursor.
func (r Repo) EventsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the id of the newest event, zero when empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func (r Repo) ListEvents(ctx context.Context, entityKind, entityID string, limit int) ([]domain.Event, error) {
	var clauses []string
	var args []any
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
