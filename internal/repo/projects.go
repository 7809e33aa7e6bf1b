package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"projectmarket/internal/domain"
)

const projectColumns = `id,title,description,budget,deadline,skills_json,status,buyer_id,assigned_to,attachments_json,created_at,updated_at`

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var budget sql.NullFloat64
	var deadline, assignedTo sql.NullString
	var skills, attachments string
	err := row.Scan(&p.ID, &p.Title, &p.Description, &budget, &deadline, &skills, &p.Status, &p.BuyerID, &assignedTo, &attachments, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if budget.Valid {
		b := budget.Float64
		p.Budget = &b
	}
	p.Deadline = stringPtr(deadline)
	p.AssignedTo = stringPtr(assignedTo)
	if p.Skills, err = decodeList(skills); err != nil {
		return p, fmt.Errorf("project %s skills: %w", p.ID, err)
	}
	if p.Attachments, err = decodeList(attachments); err != nil {
		return p, fmt.Errorf("project %s attachments: %w", p.ID, err)
	}
	return p, nil
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, p.Description, nullableFloatPtr(p.Budget), nullableStringPtr(p.Deadline), encodeList(p.Skills),
		string(p.Status), p.BuyerID, nullableStringPtr(p.AssignedTo), encodeList(p.Attachments), p.CreatedAt, p.UpdatedAt)
	return mapWriteErr(err)
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.getProject(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return r.getProject(ctx, tx, id)
}

func (r Repo) getProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// ProjectFilters narrows ListProjects. Set fields are OR-ed together; an empty
// filter lists every project.
type ProjectFilters struct {
	BuyerID    string
	AssignedTo string
	Statuses   []domain.ProjectStatus
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.BuyerID != "" {
		clauses = append(clauses, "buyer_id=?")
		args = append(args, f.BuyerID)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ",")+")")
	}
	query := `SELECT ` + projectColumns + ` FROM projects`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " OR ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectPatch holds the buyer-editable fields; nil means unchanged.
type ProjectPatch struct {
	Title       *string
	Description *string
	Budget      *float64
	Deadline    *string
	Skills      *[]string
	Attachments *[]string
}

func (p ProjectPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Budget == nil && p.Deadline == nil && p.Skills == nil && p.Attachments == nil
}

// EditOpenProjectTx applies patch only if the project is owned by buyerID and
// still open. ErrConditionFailed means no row matched.
func (r Repo) EditOpenProjectTx(ctx context.Context, tx *sql.Tx, id, buyerID string, patch ProjectPatch, updatedAt string) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if patch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *patch.Description)
	}
	if patch.Budget != nil {
		fields = append(fields, "budget=?")
		args = append(args, *patch.Budget)
	}
	if patch.Deadline != nil {
		fields = append(fields, "deadline=?")
		args = append(args, nullableStringPtr(patch.Deadline))
	}
	if patch.Skills != nil {
		fields = append(fields, "skills_json=?")
		args = append(args, encodeList(*patch.Skills))
	}
	if patch.Attachments != nil {
		fields = append(fields, "attachments_json=?")
		args = append(args, encodeList(*patch.Attachments))
	}
	args = append(args, id, buyerID, string(domain.ProjectOpen))
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=? AND buyer_id=? AND status=?`, strings.Join(fields, ",")), args...)
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

// ProjectTransition is a conditional status write. BuyerID, when set, also
// pins the owner; AssignTo, when set, is stored as assigned_to.
type ProjectTransition struct {
	ID        string
	From      domain.ProjectStatus
	To        domain.ProjectStatus
	BuyerID   string
	AssignTo  string
	UpdatedAt string
}

// TransitionProjectTx reports whether the row was in t.From and moved to t.To.
func (r Repo) TransitionProjectTx(ctx context.Context, tx *sql.Tx, t ProjectTransition) (bool, error) {
	query := `UPDATE projects SET status=?, updated_at=?`
	args := []any{string(t.To), t.UpdatedAt}
	if t.AssignTo != "" {
		query += `, assigned_to=?`
		args = append(args, t.AssignTo)
	}
	query += ` WHERE id=? AND status=?`
	args = append(args, t.ID, string(t.From))
	if t.BuyerID != "" {
		query += ` AND buyer_id=?`
		args = append(args, t.BuyerID)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return affected(res)
}
