// Package profiles owns worker and employer profiles.
package profiles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/keylock"
	"github.com/spigell/joblink/internal/logger"
	"github.com/spigell/joblink/internal/marketplace"
)

// Repository persists profiles. Get returns a NotFound marketplace error
// for unknown ids.
type Repository interface {
	Create(ctx context.Context, p *marketplace.Profile) error
	Get(ctx context.Context, id string) (*marketplace.Profile, error)
	Update(ctx context.Context, p *marketplace.Profile) error
	List(ctx context.Context, role marketplace.Role) ([]*marketplace.Profile, error)
}

// Attributes are the registration fields of a profile.
type Attributes struct {
	DisplayName string
	Location    string
	Email       string
	Phone       string
	Rating      float64
	Skills      []string
	Experience  string
	CompanyName string
	Industry    string
}

type Store struct {
	repo   Repository
	locks  *keylock.Locker
	logger *zap.Logger
	now    func() time.Time
}

func New(repo Repository, log *zap.Logger) *Store {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		repo:   repo,
		locks:  keylock.New(),
		logger: log,
		now:    time.Now,
	}
}

// CreateProfile registers a new profile with a generated id.
func (s *Store) CreateProfile(ctx context.Context, role marketplace.Role, attrs Attributes) (*marketplace.Profile, error) {
	if err := validate(role, attrs); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &marketplace.Profile{
		ID:          uuid.NewString(),
		Role:        role,
		DisplayName: strings.TrimSpace(attrs.DisplayName),
		Location:    strings.TrimSpace(attrs.Location),
		Email:       strings.TrimSpace(attrs.Email),
		Phone:       strings.TrimSpace(attrs.Phone),
		Rating:      attrs.Rating,
		Skills:      marketplace.NewSkillSet(attrs.Skills...),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch role {
	case marketplace.RoleWorker:
		p.Experience = strings.TrimSpace(attrs.Experience)
	case marketplace.RoleEmployer:
		p.CompanyName = strings.TrimSpace(attrs.CompanyName)
		p.Industry = strings.TrimSpace(attrs.Industry)
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating profile: %w", err)
	}

	s.logger.Info("profile created", logger.ProfileFields(p.ID, string(p.Role))...)
	return p.Clone(), nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*marketplace.Profile, error) {
	return s.repo.Get(ctx, id)
}

// UpdateSkills replaces the skill set of the profile.
func (s *Store) UpdateSkills(ctx context.Context, id string, skills []string) (*marketplace.Profile, error) {
	return s.mutate(ctx, id, func(p *marketplace.Profile) error {
		p.Skills = marketplace.NewSkillSet(skills...)
		return nil
	})
}

func (s *Store) UpdateRating(ctx context.Context, id string, rating float64) (*marketplace.Profile, error) {
	if err := marketplace.ValidateRating(rating); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(p *marketplace.Profile) error {
		p.Rating = rating
		return nil
	})
}

// Deactivate hides the profile without deleting it.
func (s *Store) Deactivate(ctx context.Context, id string) (*marketplace.Profile, error) {
	return s.mutate(ctx, id, func(p *marketplace.Profile) error {
		p.Active = false
		return nil
	})
}

// RecordHire increments the hire counter of an employer.
func (s *Store) RecordHire(ctx context.Context, employerID string) (*marketplace.Profile, error) {
	return s.mutate(ctx, employerID, func(p *marketplace.Profile) error {
		if !p.IsEmployer() {
			return marketplace.NewAuthorizationError(fmt.Sprintf("profile %s is not an employer", p.ID))
		}
		p.TotalHires++
		return nil
	})
}

// RecordCompletion increments the completed jobs counter of a worker.
func (s *Store) RecordCompletion(ctx context.Context, workerID string) (*marketplace.Profile, error) {
	return s.mutate(ctx, workerID, func(p *marketplace.Profile) error {
		if !p.IsWorker() {
			return marketplace.NewAuthorizationError(fmt.Sprintf("profile %s is not a worker", p.ID))
		}
		p.CompletedJobs++
		return nil
	})
}

// List returns profiles of the given role, or all profiles when role is empty.
func (s *Store) List(ctx context.Context, role marketplace.Role) ([]*marketplace.Profile, error) {
	return s.repo.List(ctx, role)
}

func (s *Store) mutate(ctx context.Context, id string, fn func(p *marketplace.Profile) error) (*marketplace.Profile, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("updating profile %s: %w", id, err)
	}
	s.logger.Debug("profile updated", logger.ProfileFields(p.ID, string(p.Role))...)
	return p.Clone(), nil
}

func validate(role marketplace.Role, attrs Attributes) error {
	fields := map[string]string{}
	if role != marketplace.RoleWorker && role != marketplace.RoleEmployer {
		fields["role"] = fmt.Sprintf("unknown role %q", role)
	}
	if strings.TrimSpace(attrs.DisplayName) == "" {
		fields["displayName"] = "display name is required"
	}
	if strings.TrimSpace(attrs.Location) == "" {
		fields["location"] = "location is required"
	}
	if err := marketplace.ValidateRating(attrs.Rating); err != nil {
		fields["rating"] = "rating must be between 0 and 5"
	}
	if email := strings.TrimSpace(attrs.Email); email != "" && !strings.Contains(email, "@") {
		fields["email"] = "email is malformed"
	}
	if len(fields) > 0 {
		return marketplace.NewValidationError("invalid profile", fields)
	}
	return nil
}
