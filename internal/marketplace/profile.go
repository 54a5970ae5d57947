package marketplace

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Role tags a profile as a worker or an employer.
type Role string

const (
	RoleWorker   Role = "worker"
	RoleEmployer Role = "employer"
)

const (
	MinRating = 0.0
	MaxRating = 5.0
)

// ParseRole normalizes a role name.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleWorker:
		return RoleWorker, nil
	case RoleEmployer:
		return RoleEmployer, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type Profile struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"displayName"`
	Location    string    `json:"location"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Rating      float64   `json:"rating"`
	Skills      SkillSet  `json:"skills"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Worker only.
	Experience    string `json:"experience,omitempty"`
	CompletedJobs int    `json:"completedJobs"`

	// Employer only.
	CompanyName string `json:"companyName,omitempty"`
	Industry    string `json:"industry,omitempty"`
	TotalHires  int    `json:"totalHires"`
}

func (p *Profile) IsWorker() bool   { return p != nil && p.Role == RoleWorker }
func (p *Profile) IsEmployer() bool { return p != nil && p.Role == RoleEmployer }

// Clone returns a deep copy so stores never hand out their own records.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Skills = p.Skills.Clone()
	return &c
}

// ValidateRating checks the [0,5] rating invariant.
func ValidateRating(rating float64) error {
	if rating < MinRating || rating > MaxRating || math.IsNaN(rating) {
		return NewValidationError("invalid rating", map[string]string{
			"rating": fmt.Sprintf("rating must be between %.0f and %.0f", MinRating, MaxRating),
		})
	}
	return nil
}

// SkillSet is an ordered set of skills. Membership is case-insensitive and
// the first spelling of a skill wins.
type SkillSet []string

// NewSkillSet trims the provided skills and drops blanks and duplicates.
func NewSkillSet(skills ...string) SkillSet {
	set := make(SkillSet, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		key := strings.ToLower(skill)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		set = append(set, skill)
	}
	return set
}

func (s SkillSet) Len() int { return len(s) }

func (s SkillSet) Contains(skill string) bool {
	skill = strings.TrimSpace(skill)
	for _, item := range s {
		if strings.EqualFold(item, skill) {
			return true
		}
	}
	return false
}

// Intersect counts the skills present in both sets.
func (s SkillSet) Intersect(other SkillSet) int {
	count := 0
	for _, item := range s {
		if other.Contains(item) {
			count++
		}
	}
	return count
}

func (s SkillSet) Clone() SkillSet {
	if s == nil {
		return nil
	}
	c := make(SkillSet, len(s))
	copy(c, s)
	return c
}
