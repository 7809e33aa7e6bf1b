package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"projectmarket/internal/domain"
)

const taskColumns = `id,project_id,created_by,title,description,deadline,status,priority,tags_json,notes,created_at,updated_at`

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var desc, deadline, notes sql.NullString
	var tags string
	err := row.Scan(&t.ID, &t.ProjectID, &t.CreatedBy, &t.Title, &desc, &deadline, &t.Status, &t.Metadata.Priority, &tags, &notes, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if notes.Valid {
		t.Metadata.Notes = notes.String
	}
	t.Deadline = stringPtr(deadline)
	if t.Metadata.Tags, err = decodeList(tags); err != nil {
		return t, fmt.Errorf("task %s tags: %w", t.ID, err)
	}
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	priority := t.Metadata.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.CreatedBy, t.Title, nullable(t.Description), nullableStringPtr(t.Deadline), string(t.Status),
		string(priority), encodeList(t.Metadata.Tags), nullable(t.Metadata.Notes), t.CreatedAt, t.UpdatedAt)
	return mapWriteErr(err)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.getTask(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return r.getTask(ctx, tx, id)
}

func (r Repo) getTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY created_at, rowid`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TaskStatusesTx returns the status of every task of the project.
func (r Repo) TaskStatusesTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.TaskStatus, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT status FROM tasks WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskStatus
	for rows.Next() {
		var s domain.TaskStatus
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// TaskUpdate is a conditional write guarded by the task's current status.
// Nil fields are left unchanged.
type TaskUpdate struct {
	ID          string
	Expect      domain.TaskStatus
	Status      *domain.TaskStatus
	Title       *string
	Description *string
	Deadline    *string
	Priority    *domain.Priority
	Tags        *[]string
	Notes       *string
	UpdatedAt   string
}

// UpdateTaskTx reports whether the task was still in u.Expect and got updated.
func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, u TaskUpdate) (bool, error) {
	fields := []string{"updated_at=?"}
	args := []any{u.UpdatedAt}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*u.Status))
	}
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*u.Description))
	}
	if u.Deadline != nil {
		fields = append(fields, "deadline=?")
		args = append(args, nullableStringPtr(u.Deadline))
	}
	if u.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, string(*u.Priority))
	}
	if u.Tags != nil {
		fields = append(fields, "tags_json=?")
		args = append(args, encodeList(*u.Tags))
	}
	if u.Notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, nullable(*u.Notes))
	}
	args = append(args, u.ID, string(u.Expect))
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=? AND status=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// DeleteTodoTaskTx deletes the task only if createdBy owns it and it is still todo.
func (r Repo) DeleteTodoTaskTx(ctx context.Context, tx *sql.Tx, id, createdBy string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND created_by=? AND status=?`, id, createdBy, string(domain.TaskTodo))
	if err != nil {
		return false, err
	}
	return affected(res)
}
