package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/joblink/internal/marketplace"
)

const profileColumns = `id::text, role, display_name, location, email, phone, rating, skills,
	experience, completed_jobs, company_name, industry, total_hires, active, created_at, updated_at`

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func (r *ProfileRepository) Create(ctx context.Context, p *marketplace.Profile) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (id, role, display_name, location, email, phone, rating, skills,
			experience, completed_jobs, company_name, industry, total_hires, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, string(p.Role), p.DisplayName, p.Location, p.Email, p.Phone, p.Rating, skillArray(p.Skills),
		p.Experience, p.CompletedJobs, p.CompanyName, p.Industry, p.TotalHires, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	return translate(err, "profile", p.ID)
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (*marketplace.Profile, error) {
	if !validID(id) {
		return nil, marketplace.NewNotFoundError("profile", id)
	}
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		return nil, translate(err, "profile", id)
	}
	return p, nil
}

func (r *ProfileRepository) Update(ctx context.Context, p *marketplace.Profile) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE profiles SET display_name = $2, location = $3, email = $4, phone = $5, rating = $6,
			skills = $7, experience = $8, completed_jobs = $9, company_name = $10, industry = $11,
			total_hires = $12, active = $13, updated_at = $14
		 WHERE id = $1`,
		p.ID, p.DisplayName, p.Location, p.Email, p.Phone, p.Rating,
		skillArray(p.Skills), p.Experience, p.CompletedJobs, p.CompanyName, p.Industry,
		p.TotalHires, p.Active, p.UpdatedAt,
	)
	if err != nil {
		return translate(err, "profile", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NewNotFoundError("profile", p.ID)
	}
	return nil
}

func (r *ProfileRepository) List(ctx context.Context, role marketplace.Role) ([]*marketplace.Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE $1 = '' OR role = $1
		 ORDER BY created_at, id`, string(role))
	if err != nil {
		return nil, translate(err, "profile", "")
	}
	defer rows.Close()

	var out []*marketplace.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, translate(err, "profile", "")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "profile", "")
	}
	return out, nil
}

func scanProfile(row pgx.Row) (*marketplace.Profile, error) {
	var p marketplace.Profile
	var role string
	var skills []string
	err := row.Scan(&p.ID, &role, &p.DisplayName, &p.Location, &p.Email, &p.Phone, &p.Rating, &skills,
		&p.Experience, &p.CompletedJobs, &p.CompanyName, &p.Industry, &p.TotalHires, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Role = marketplace.Role(role)
	p.Skills = marketplace.SkillSet(skills)
	return &p, nil
}
