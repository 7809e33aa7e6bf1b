package repo

import (
	"context"
	"database/sql"

	"projectmarket/internal/domain"
)

const submissionColumns = `id,task_id,project_id,submitted_by,file_name,file_path,file_size,notes,status,review_note,created_at,updated_at`

func scanSubmission(row scanner) (domain.Submission, error) {
	var s domain.Submission
	var notes, review sql.NullString
	err := row.Scan(&s.ID, &s.TaskID, &s.ProjectID, &s.SubmittedBy, &s.FileName, &s.FilePath, &s.FileSize, &notes, &s.Status, &review, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if notes.Valid {
		s.Notes = notes.String
	}
	if review.Valid {
		s.ReviewNote = review.String
	}
	return s, err
}

func (r Repo) InsertSubmissionTx(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submissions(`+submissionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.TaskID, s.ProjectID, s.SubmittedBy, s.FileName, s.FilePath, s.FileSize, nullable(s.Notes),
		string(s.Status), nullable(s.ReviewNote), s.CreatedAt, s.UpdatedAt)
	return mapWriteErr(err)
}

func (r Repo) GetSubmissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Submission, error) {
	return scanSubmission(r.q(tx).QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id))
}

// LatestSubmissionIDTx returns the newest submission id of the task.
func (r Repo) LatestSubmissionIDTx(ctx context.Context, tx *sql.Tx, taskID string) (string, error) {
	var id string
	err := r.q(tx).QueryRowContext(ctx, `SELECT id FROM submissions WHERE task_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1`, taskID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

// ReviewSubmissionTx records the verdict on a pending submission.
func (r Repo) ReviewSubmissionTx(ctx context.Context, tx *sql.Tx, id string, status domain.SubmissionStatus, note, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE submissions SET status=?, review_note=?, updated_at=? WHERE id=? AND status=?`,
		string(status), nullable(note), updatedAt, id, string(domain.SubmissionPending))
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SettleLatestSubmissionTx gives the task's newest submission the verdict
// when it is still pending and returns its id.
func (r Repo) SettleLatestSubmissionTx(ctx context.Context, tx *sql.Tx, taskID string, status domain.SubmissionStatus, updatedAt string) (string, bool, error) {
	id, err := r.LatestSubmissionIDTx(ctx, tx, taskID)
	if err == ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE submissions SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(status), updatedAt, id, string(domain.SubmissionPending))
	if err != nil {
		return "", false, err
	}
	ok, err := affected(res)
	return id, ok, err
}

func (r Repo) ListSubmissionsByTask(ctx context.Context, taskID string) ([]domain.Submission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE task_id=? ORDER BY created_at DESC, rowid DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
