package repo

import (
	"context"
	"database/sql"
	"strings"

	"govline/internal/domain"
)

func scanProfile(scan func(dest ...any) error) (domain.Profile, error) {
	var p domain.Profile
	var active int
	err := scan(&p.UserID, &p.FullName, &p.Role, &active, &p.AvatarURL, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.Active = active != 0
	return p, nil
}

const profileColumns = `user_id,full_name,role,active,COALESCE(avatar_url,'') AS avatar_url,created_at`

func (r Repo) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=?`, userID)
	p, err := scanProfile(row.Scan)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// InsertProfileIfAbsent creates a profile unless one exists for the user.
// Reports whether a row was written.
func (r Repo) InsertProfileIfAbsent(ctx context.Context, p domain.Profile) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(user_id,full_name,role,active,avatar_url,created_at)
VALUES (?,?,?,?,?,?) ON CONFLICT(user_id) DO NOTHING`,
		p.UserID, p.FullName, p.Role, boolToInt(p.Active), nullable(p.AvatarURL), p.CreatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) UpdateProfile(ctx context.Context, userID string, fullName, role *string, active *bool) error {
	var (
		fields []string
		args   []any
	)
	if fullName != nil {
		fields = append(fields, "full_name=?")
		args = append(args, *fullName)
	}
	if role != nil {
		fields = append(fields, "role=?")
		args = append(args, *role)
	}
	if active != nil {
		fields = append(fields, "active=?")
		args = append(args, boolToInt(*active))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, userID)
	res, err := r.DB.ExecContext(ctx, `UPDATE profiles SET `+strings.Join(fields, ", ")+` WHERE user_id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListProfiles(ctx context.Context, activeOnly bool) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY full_name`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
