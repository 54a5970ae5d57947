package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/joblink/internal/marketplace"
)

const applicationColumns = `id::text, job_id::text, worker_id::text, status, applied_at, decided_at, updated_at`

type ApplicationRepository struct {
	pool *pgxpool.Pool
}

// Create inserts the application only while its job is open. The unique
// (job_id, worker_id) constraint surfaces as a Conflict error, and a job that
// was filled or archived by another writer as a State error.
func (r *ApplicationRepository) Create(ctx context.Context, app *marketplace.Application) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO applications (id, job_id, worker_id, status, applied_at, decided_at, updated_at)
		 SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::timestamptz, $6::timestamptz, $7::timestamptz
		 WHERE EXISTS (SELECT 1 FROM jobs WHERE id = $2::uuid AND NOT filled AND NOT archived)`,
		app.ID, app.JobID, app.WorkerID, string(app.Status), app.AppliedAt, app.DecidedAt, app.UpdatedAt,
	)
	if err != nil {
		translated := translate(err, "application", app.ID)
		if marketplace.Is(translated, marketplace.KindConflict) {
			return marketplace.NewConflictError(fmt.Sprintf("worker %s already applied for job %s", app.WorkerID, app.JobID))
		}
		return translated
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NewStateError(fmt.Sprintf("job %s is not open for applications", app.JobID))
	}
	return nil
}

func (r *ApplicationRepository) Get(ctx context.Context, id string) (*marketplace.Application, error) {
	if !validID(id) {
		return nil, marketplace.NewNotFoundError("application", id)
	}
	app, err := scanApplication(r.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "application", id)
	}
	return app, nil
}

func (r *ApplicationRepository) Update(ctx context.Context, app *marketplace.Application) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE applications SET status = $2, decided_at = $3, updated_at = $4 WHERE id = $1`,
		app.ID, string(app.Status), app.DecidedAt, app.UpdatedAt,
	)
	if err != nil {
		return translate(err, "application", app.ID)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NewNotFoundError("application", app.ID)
	}
	return nil
}

func (r *ApplicationRepository) FindByPair(ctx context.Context, jobID, workerID string) (*marketplace.Application, error) {
	key := jobID + "/" + workerID
	if !validID(jobID) || !validID(workerID) {
		return nil, marketplace.NewNotFoundError("application", key)
	}
	app, err := scanApplication(r.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE job_id = $1 AND worker_id = $2`, jobID, workerID))
	if err != nil {
		return nil, translate(err, "application", key)
	}
	return app, nil
}

func (r *ApplicationRepository) ListByWorker(ctx context.Context, workerID string) ([]*marketplace.Application, error) {
	if !validID(workerID) {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+applicationColumns+` FROM applications WHERE worker_id = $1
		ORDER BY applied_at DESC, id`, workerID)
}

func (r *ApplicationRepository) ListByJob(ctx context.Context, jobID string) ([]*marketplace.Application, error) {
	if !validID(jobID) {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+applicationColumns+` FROM applications WHERE job_id = $1
		ORDER BY applied_at DESC, id`, jobID)
}

func (r *ApplicationRepository) list(ctx context.Context, query string, arg string) ([]*marketplace.Application, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, translate(err, "application", "")
	}
	defer rows.Close()

	var out []*marketplace.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, translate(err, "application", "")
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "application", "")
	}
	return out, nil
}

func scanApplication(row pgx.Row) (*marketplace.Application, error) {
	var app marketplace.Application
	var status string
	if err := row.Scan(&app.ID, &app.JobID, &app.WorkerID, &status, &app.AppliedAt, &app.DecidedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}
	app.Status = marketplace.Status(status)
	return &app, nil
}
