// Package seed loads sample profiles, jobs and applications into the stores.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/profiles"
)

//go:embed seed.yaml
var defaultFixture []byte

type Fixture struct {
	Profiles     []ProfileSeed     `mapstructure:"profiles"`
	Jobs         []JobSeed         `mapstructure:"jobs"`
	Applications []ApplicationSeed `mapstructure:"applications"`
}

type ProfileSeed struct {
	Key         string   `mapstructure:"key"`
	Role        string   `mapstructure:"role"`
	DisplayName string   `mapstructure:"display_name"`
	Location    string   `mapstructure:"location"`
	Email       string   `mapstructure:"email"`
	Phone       string   `mapstructure:"phone"`
	Rating      float64  `mapstructure:"rating"`
	Skills      []string `mapstructure:"skills"`
	Experience  string   `mapstructure:"experience"`
	CompanyName string   `mapstructure:"company_name"`
	Industry    string   `mapstructure:"industry"`
}

// JobSeed references its employer by profile key. Wage is in whole units
// of the currency.
type JobSeed struct {
	Key         string   `mapstructure:"key"`
	Employer    string   `mapstructure:"employer"`
	Title       string   `mapstructure:"title"`
	Location    string   `mapstructure:"location"`
	Wage        int64    `mapstructure:"wage"`
	Currency    string   `mapstructure:"currency"`
	Category    string   `mapstructure:"category"`
	Urgent      bool     `mapstructure:"urgent"`
	Skills      []string `mapstructure:"skills"`
	Description string   `mapstructure:"description"`
}

type ApplicationSeed struct {
	Worker   string `mapstructure:"worker"`
	Job      string `mapstructure:"job"`
	Reviewed bool   `mapstructure:"reviewed"`
}

// Load reads a fixture from path, or the built-in sample data when path is empty.
func Load(path string) (*Fixture, error) {
	v := viper.New()
	if path == "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(defaultFixture)); err != nil {
			return nil, fmt.Errorf("reading built-in fixture: %w", err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading fixture %s: %w", path, err)
		}
	}

	var fixture Fixture
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fixture,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}

	if err := fixture.Validate(); err != nil {
		return nil, err
	}
	return &fixture, nil
}

// Validate checks that keys are unique and every reference resolves.
func (f *Fixture) Validate() error {
	var errs []error

	roles := make(map[string]string, len(f.Profiles))
	for i, p := range f.Profiles {
		if p.Key == "" {
			errs = append(errs, fmt.Errorf("profiles[%d]: key is required", i))
			continue
		}
		if _, dup := roles[p.Key]; dup {
			errs = append(errs, fmt.Errorf("profiles[%d]: duplicate key %q", i, p.Key))
		}
		if _, err := marketplace.ParseRole(p.Role); err != nil {
			errs = append(errs, fmt.Errorf("profiles[%d]: %w", i, err))
		}
		roles[p.Key] = strings.ToLower(p.Role)
	}

	jobs := make(map[string]struct{}, len(f.Jobs))
	for i, j := range f.Jobs {
		if j.Key == "" {
			errs = append(errs, fmt.Errorf("jobs[%d]: key is required", i))
			continue
		}
		if _, dup := jobs[j.Key]; dup {
			errs = append(errs, fmt.Errorf("jobs[%d]: duplicate key %q", i, j.Key))
		}
		jobs[j.Key] = struct{}{}
		if roles[j.Employer] != string(marketplace.RoleEmployer) {
			errs = append(errs, fmt.Errorf("jobs[%d]: %q is not an employer profile", i, j.Employer))
		}
	}

	for i, a := range f.Applications {
		if roles[a.Worker] != string(marketplace.RoleWorker) {
			errs = append(errs, fmt.Errorf("applications[%d]: %q is not a worker profile", i, a.Worker))
		}
		if _, ok := jobs[a.Job]; !ok {
			errs = append(errs, fmt.Errorf("applications[%d]: unknown job %q", i, a.Job))
		}
	}

	return errors.Join(errs...)
}

// Stores receive the seeded records. profiles.Store, catalog.Catalog and
// workflow.Workflow satisfy them.
type (
	ProfileStore interface {
		CreateProfile(ctx context.Context, role marketplace.Role, attrs profiles.Attributes) (*marketplace.Profile, error)
	}
	JobCatalog interface {
		PostJob(ctx context.Context, employerID string, attrs marketplace.JobAttributes) (*marketplace.Job, error)
	}
	Workflow interface {
		Apply(ctx context.Context, jobID, workerID string) (*marketplace.Application, error)
		MarkReviewed(ctx context.Context, applicationID, employerID string) (*marketplace.Application, error)
	}
)

// Result maps fixture keys to the created records.
type Result struct {
	Profiles     map[string]*marketplace.Profile
	Jobs         map[string]*marketplace.Job
	Applications []*marketplace.Application
}

type Seeder struct {
	Profiles ProfileStore
	Catalog  JobCatalog
	Workflow Workflow
	Logger   *zap.Logger
}

// Apply creates every record of the fixture through the stores, so all
// domain checks run as they would for a live request.
func (s *Seeder) Apply(ctx context.Context, f *Fixture) (*Result, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	res := &Result{
		Profiles: make(map[string]*marketplace.Profile, len(f.Profiles)),
		Jobs:     make(map[string]*marketplace.Job, len(f.Jobs)),
	}

	for _, p := range f.Profiles {
		role, err := marketplace.ParseRole(p.Role)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Key, err)
		}
		created, err := s.Profiles.CreateProfile(ctx, role, profiles.Attributes{
			DisplayName: p.DisplayName,
			Location:    p.Location,
			Email:       p.Email,
			Phone:       p.Phone,
			Rating:      p.Rating,
			Skills:      p.Skills,
			Experience:  p.Experience,
			CompanyName: p.CompanyName,
			Industry:    p.Industry,
		})
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Key, err)
		}
		res.Profiles[p.Key] = created
	}

	for _, j := range f.Jobs {
		employer := res.Profiles[j.Employer]
		job, err := s.Catalog.PostJob(ctx, employer.ID, marketplace.JobAttributes{
			Title:       j.Title,
			Location:    j.Location,
			Wage:        marketplace.Wage{Amount: j.Wage * 100, Currency: j.Currency},
			Category:    j.Category,
			Skills:      j.Skills,
			Urgent:      j.Urgent,
			Description: j.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.Key, err)
		}
		res.Jobs[j.Key] = job
	}

	if s.Workflow != nil {
		for _, a := range f.Applications {
			job := res.Jobs[a.Job]
			app, err := s.Workflow.Apply(ctx, job.ID, res.Profiles[a.Worker].ID)
			if err != nil {
				return nil, fmt.Errorf("application %s -> %s: %w", a.Worker, a.Job, err)
			}
			if a.Reviewed {
				if app, err = s.Workflow.MarkReviewed(ctx, app.ID, job.EmployerID); err != nil {
					return nil, fmt.Errorf("reviewing application %s -> %s: %w", a.Worker, a.Job, err)
				}
			}
			res.Applications = append(res.Applications, app)
		}
	}

	log.Info("seeded marketplace",
		zap.Int("profiles", len(res.Profiles)),
		zap.Int("jobs", len(res.Jobs)),
		zap.Int("applications", len(res.Applications)),
	)
	return res, nil
}
