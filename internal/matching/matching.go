// Package matching scores how well a worker profile fits a job posting.
package matching

import (
	"context"
	"math"
	"strings"

	"github.com/spigell/joblink/internal/marketplace"
)

const (
	MaxScore      = 100
	LocationBonus = 10
)

// Scorer produces a 0..100 match score for a worker and a job.
type Scorer interface {
	Score(ctx context.Context, profile *marketplace.Profile, job *marketplace.Job) (int, error)
}

// Score is the deterministic rule-based score: the share of required skills the
// worker has, plus a bonus for the same location, capped at MaxScore.
func Score(profile *marketplace.Profile, job *marketplace.Job) int {
	if profile == nil || job == nil {
		return 0
	}

	required := job.RequiredSkills.Len()
	matched := job.RequiredSkills.Intersect(profile.Skills)
	score := int(math.Round(float64(MaxScore*matched) / float64(max(1, required))))

	if SameLocation(profile.Location, job.Location) {
		score += LocationBonus
	}

	return Clamp(score)
}

// SameLocation compares locations ignoring case and surrounding whitespace.
func SameLocation(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

func Clamp(score int) int {
	return min(max(score, 0), MaxScore)
}

// RuleScorer adapts Score to the Scorer interface.
type RuleScorer struct{}

func (RuleScorer) Score(_ context.Context, profile *marketplace.Profile, job *marketplace.Job) (int, error) {
	return Score(profile, job), nil
}
