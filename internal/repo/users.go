package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"projectmarket/internal/domain"
)

const userColumns = `id,name,email,password_hash,role,profile_json,created_at,updated_at`

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	var profile sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &profile, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if profile.Valid && profile.String != "" {
		var p domain.Profile
		if err := json.Unmarshal([]byte(profile.String), &p); err != nil {
			return u, err
		}
		u.Profile = &p
	}
	return u, nil
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// InsertUserTx inserts u and decides its role in the same statement: the first
// row in an empty table becomes admin, every later one gets u.Role. It returns
// the role that was stored.
func (r Repo) InsertUserTx(ctx context.Context, tx *sql.Tx, u domain.User) (domain.Role, error) {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,name,email,password_hash,role,profile_json,created_at,updated_at)
VALUES (?,?,?,?,CASE WHEN (SELECT COUNT(*) FROM users)=0 THEN 'admin' ELSE ? END,NULL,?,?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return "", mapWriteErr(err)
	}
	var role domain.Role
	if err := tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id=?`, u.ID).Scan(&role); err != nil {
		return "", err
	}
	return role, nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.getUser(ctx, nil, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return r.getUser(ctx, tx, id)
}

func (r Repo) getUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) SetUserRoleTx(ctx context.Context, tx *sql.Tx, id string, role domain.Role, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET role=?, updated_at=? WHERE id=?`, string(role), updatedAt, id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// UpdateProfileTx replaces the profile of a user who still holds role.
func (r Repo) UpdateProfileTx(ctx context.Context, tx *sql.Tx, id string, role domain.Role, p domain.Profile, updatedAt string) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE users SET profile_json=?, updated_at=? WHERE id=? AND role=?`, string(data), updatedAt, id, string(role))
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConditionFailed
	}
	return nil
}
