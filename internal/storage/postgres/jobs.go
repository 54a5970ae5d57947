package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/joblink/internal/marketplace"
)

const jobColumns = `id::text, employer_id::text, title, location, wage_amount, wage_currency, category,
	required_skills, urgent, description, filled, filled_at, archived, created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

// skillArray keeps a nil set from being sent as NULL into a NOT NULL array column.
func skillArray(skills marketplace.SkillSet) []string {
	if skills == nil {
		return []string{}
	}
	return []string(skills)
}

func (r *JobRepository) Create(ctx context.Context, job *marketplace.Job) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO jobs (id, employer_id, title, location, wage_amount, wage_currency, category,
			required_skills, urgent, description, filled, filled_at, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		job.ID, job.EmployerID, job.Title, job.Location, job.Wage.Amount, job.Wage.Currency, job.Category,
		skillArray(job.RequiredSkills), job.Urgent, job.Description, job.Filled, job.FilledAt, job.Archived,
		job.CreatedAt, job.UpdatedAt,
	)
	return translate(err, "job", job.ID)
}

func (r *JobRepository) Get(ctx context.Context, id string) (*marketplace.Job, error) {
	if !validID(id) {
		return nil, marketplace.NewNotFoundError("job", id)
	}
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "job", id)
	}
	return job, nil
}

func (r *JobRepository) Update(ctx context.Context, job *marketplace.Job) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET title = $2, location = $3, wage_amount = $4, wage_currency = $5, category = $6,
			required_skills = $7, urgent = $8, description = $9, filled = $10, filled_at = $11,
			archived = $12, updated_at = $13
		 WHERE id = $1`,
		job.ID, job.Title, job.Location, job.Wage.Amount, job.Wage.Currency, job.Category,
		skillArray(job.RequiredSkills), job.Urgent, job.Description, job.Filled, job.FilledAt,
		job.Archived, job.UpdatedAt,
	)
	if err != nil {
		return translate(err, "job", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NewNotFoundError("job", job.ID)
	}
	return nil
}

// List returns every job, newest first.
func (r *JobRepository) List(ctx context.Context) ([]*marketplace.Job, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, translate(err, "job", "")
	}
	defer rows.Close()

	var out []*marketplace.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, translate(err, "job", "")
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "job", "")
	}
	return out, nil
}

func scanJob(row pgx.Row) (*marketplace.Job, error) {
	var job marketplace.Job
	var skills []string
	err := row.Scan(&job.ID, &job.EmployerID, &job.Title, &job.Location, &job.Wage.Amount, &job.Wage.Currency,
		&job.Category, &skills, &job.Urgent, &job.Description, &job.Filled, &job.FilledAt, &job.Archived,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.RequiredSkills = marketplace.SkillSet(skills)
	return &job, nil
}
