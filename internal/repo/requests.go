package repo

import (
	"context"
	"database/sql"

	"projectmarket/internal/domain"
)

const requestColumns = `id,project_id,problem_solver_id,message,status,created_at,updated_at`

func scanRequest(row scanner) (domain.Request, error) {
	var req domain.Request
	var msg sql.NullString
	err := row.Scan(&req.ID, &req.ProjectID, &req.ProblemSolverID, &msg, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if msg.Valid {
		req.Message = msg.String
	}
	return req, err
}

// InsertRequestIfOpenTx inserts req only while its project is open.
// ErrConditionFailed means the project was not open (or absent);
// ErrUniqueViolation means the solver already applied.
func (r Repo) InsertRequestIfOpenTx(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO requests(`+requestColumns+`)
SELECT ?,?,?,?,?,?,? WHERE EXISTS (SELECT 1 FROM projects WHERE id=? AND status=?)`,
		req.ID, req.ProjectID, req.ProblemSolverID, nullable(req.Message), string(req.Status), req.CreatedAt, req.UpdatedAt,
		req.ProjectID, string(domain.ProjectOpen))
	if err != nil {
		return mapWriteErr(err)
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

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, projectID, solverID string) (domain.Request, error) {
	return scanRequest(r.q(tx).QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE project_id=? AND problem_solver_id=?`, projectID, solverID))
}

// AcceptRequestTx moves the solver's pending request to accepted.
func (r Repo) AcceptRequestTx(ctx context.Context, tx *sql.Tx, projectID, solverID, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE requests SET status=?, updated_at=? WHERE project_id=? AND problem_solver_id=? AND status=?`,
		string(domain.RequestAccepted), updatedAt, projectID, solverID, string(domain.RequestPending))
	if err != nil {
		return false, mapWriteErr(err)
	}
	return affected(res)
}

// RejectPendingRequestsTx rejects every pending request of the project and
// returns the ids it rejected.
func (r Repo) RejectPendingRequestsTx(ctx context.Context, tx *sql.Tx, projectID, updatedAt string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM requests WHERE project_id=? AND status=? ORDER BY created_at, rowid`, projectID, string(domain.RequestPending))
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE requests SET status=?, updated_at=? WHERE project_id=? AND status=?`,
		string(domain.RequestRejected), updatedAt, projectID, string(domain.RequestPending))
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r Repo) ListRequestsByProject(ctx context.Context, projectID string) ([]domain.Request, error) {
	return r.listRequests(ctx, `project_id=?`, projectID)
}

func (r Repo) ListRequestsBySolver(ctx context.Context, solverID string) ([]domain.Request, error) {
	return r.listRequests(ctx, `problem_solver_id=?`, solverID)
}

func (r Repo) listRequests(ctx context.Context, where string, arg string) ([]domain.Request, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE `+where+` ORDER BY created_at DESC, rowid DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}
