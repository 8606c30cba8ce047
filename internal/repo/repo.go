package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"govline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertArea(ctx context.Context, a domain.Area) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO governance_areas(id,name,description,sort_order,created_at) VALUES (?,?,?,?,?)`,
		a.ID, a.Name, nullable(a.Description), a.SortOrder, a.CreatedAt)
	return err
}

func (r Repo) GetArea(ctx context.Context, id string) (domain.Area, error) {
	var a domain.Area
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,'') AS description,sort_order,created_at FROM governance_areas WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &a.Description, &a.SortOrder, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAreas(ctx context.Context) ([]domain.Area, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') AS description,sort_order,created_at FROM governance_areas ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Area
	for rows.Next() {
		var a domain.Area
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.SortOrder, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateArea(ctx context.Context, id string, name, description *string, sortOrder *int) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if sortOrder != nil {
		fields = append(fields, "sort_order=?")
		args = append(args, *sortOrder)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE governance_areas SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteArea(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM governance_areas WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertUnit(ctx context.Context, u domain.BusinessUnit) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO business_units(id,code,name,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Code, u.Name, u.CreatedAt)
	return err
}

func (r Repo) GetUnit(ctx context.Context, id string) (domain.BusinessUnit, error) {
	var u domain.BusinessUnit
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,created_at FROM business_units WHERE id=?`, id).
		Scan(&u.ID, &u.Code, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUnits(ctx context.Context) ([]domain.BusinessUnit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name,created_at FROM business_units ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BusinessUnit
	for rows.Next() {
		var u domain.BusinessUnit
		if err := rows.Scan(&u.ID, &u.Code, &u.Name, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) InsertRoutine(ctx context.Context, tx *sql.Tx, rt domain.Routine) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO routines(id,area_id,title,description,frequency,day_of_month,priority,is_active,risk_score,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rt.ID, rt.AreaID, rt.Title, nullable(rt.Description), rt.Frequency, nullableIntPtr(rt.DayOfMonth),
		rt.Priority, boolToInt(rt.IsActive), nullableIntPtr(rt.RiskScore), rt.CreatedAt)
	if err != nil {
		return err
	}
	return r.replaceRoutineLinks(ctx, tx, rt)
}

func (r Repo) UpdateRoutine(ctx context.Context, tx *sql.Tx, rt domain.Routine) error {
	res, err := tx.ExecContext(ctx, `UPDATE routines SET area_id=?, title=?, description=?, frequency=?, day_of_month=?, priority=?, is_active=?, risk_score=? WHERE id=?`,
		rt.AreaID, rt.Title, nullable(rt.Description), rt.Frequency, nullableIntPtr(rt.DayOfMonth),
		rt.Priority, boolToInt(rt.IsActive), nullableIntPtr(rt.RiskScore), rt.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return r.replaceRoutineLinks(ctx, tx, rt)
}

func (r Repo) replaceRoutineLinks(ctx context.Context, tx *sql.Tx, rt domain.Routine) error {
	for _, table := range []string{"routine_owners", "routine_scope", "routine_approvers"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE routine_id=?`, table), rt.ID); err != nil {
			return err
		}
	}
	for _, userID := range rt.OwnerIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO routine_owners(routine_id,user_id) VALUES (?,?)`, rt.ID, userID); err != nil {
			return err
		}
	}
	for _, unitID := range rt.ScopeIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO routine_scope(routine_id,unit_id) VALUES (?,?)`, rt.ID, unitID); err != nil {
			return err
		}
	}
	for i, userID := range rt.ApproverIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO routine_approvers(routine_id,ord,user_id) VALUES (?,?,?)`, rt.ID, i+1, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) SetRoutineActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE routines SET is_active=? WHERE id=?`, boolToInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const routineColumns = `id,area_id,title,COALESCE(description,'') AS description,frequency,day_of_month,priority,is_active,risk_score,created_at`

func scanRoutine(scan func(dest ...any) error) (domain.Routine, error) {
	var rt domain.Routine
	var dayOfMonth, riskScore sql.NullInt64
	var active int
	err := scan(&rt.ID, &rt.AreaID, &rt.Title, &rt.Description, &rt.Frequency, &dayOfMonth, &rt.Priority, &active, &riskScore, &rt.CreatedAt)
	if err != nil {
		return rt, err
	}
	rt.IsActive = active != 0
	if dayOfMonth.Valid {
		d := int(dayOfMonth.Int64)
		rt.DayOfMonth = &d
	}
	if riskScore.Valid {
		s := int(riskScore.Int64)
		rt.RiskScore = &s
	}
	return rt, nil
}

func (r Repo) GetRoutine(ctx context.Context, id string) (domain.Routine, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+routineColumns+` FROM routines WHERE id=?`, id)
	rt, err := scanRoutine(row.Scan)
	if err == sql.ErrNoRows {
		return rt, ErrNotFound
	}
	if err != nil {
		return rt, err
	}
	return r.loadRoutineLinks(ctx, rt)
}

func (r Repo) loadRoutineLinks(ctx context.Context, rt domain.Routine) (domain.Routine, error) {
	var err error
	rt.OwnerIDs, err = r.listLinked(ctx, `SELECT user_id FROM routine_owners WHERE routine_id=? ORDER BY user_id`, rt.ID)
	if err != nil {
		return rt, err
	}
	rt.ScopeIDs, err = r.listLinked(ctx, `SELECT unit_id FROM routine_scope WHERE routine_id=? ORDER BY unit_id`, rt.ID)
	if err != nil {
		return rt, err
	}
	rt.ApproverIDs, err = r.listLinked(ctx, `SELECT user_id FROM routine_approvers WHERE routine_id=? ORDER BY ord`, rt.ID)
	return rt, err
}

func (r Repo) listLinked(ctx context.Context, query, routineID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, routineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

type RoutineFilters struct {
	AreaID     string
	Frequency  string
	OwnerID    string
	ActiveOnly bool
}

func (r Repo) ListRoutines(ctx context.Context, f RoutineFilters) ([]domain.Routine, error) {
	var clauses []string
	var args []any
	if f.AreaID != "" {
		clauses = append(clauses, "area_id=?")
		args = append(args, f.AreaID)
	}
	if f.Frequency != "" {
		clauses = append(clauses, "frequency=?")
		args = append(args, f.Frequency)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "id IN (SELECT routine_id FROM routine_owners WHERE user_id=?)")
		args = append(args, f.OwnerID)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "is_active=1")
	}
	query := `SELECT ` + routineColumns + ` FROM routines`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY title"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Routine
	for rows.Next() {
		rt, err := scanRoutine(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i], err = r.loadRoutineLinks(ctx, res[i])
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
