package matching

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/joblink/internal/logger"
	"github.com/spigell/joblink/internal/marketplace"
)

const defaultConcurrency = 4

// Ranked pairs a job with its score for a given worker.
type Ranked struct {
	Job   *marketplace.Job `json:"job"`
	Score int              `json:"score"`
}

type Ranker struct {
	scorer      Scorer
	concurrency int
	logger      *zap.Logger
}

func NewRanker(scorer Scorer, concurrency int, log *zap.Logger) *Ranker {
	if scorer == nil {
		scorer = RuleScorer{}
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{scorer: scorer, concurrency: concurrency, logger: log}
}

func (r *Ranker) Scorer() Scorer { return r.scorer }

// Rank scores every job and orders them by score descending, newest first on
// ties, then by id.
func (r *Ranker) Rank(ctx context.Context, profile *marketplace.Profile, jobs []*marketplace.Job) ([]Ranked, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile is required for ranking")
	}

	ranked := make([]Ranked, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			score, err := r.scorer.Score(gctx, profile, job)
			if err != nil {
				return fmt.Errorf("scoring job %s: %w", job.ID, err)
			}
			ranked[i] = Ranked{Job: job, Score: Clamp(score)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortRanked(ranked)

	r.logger.Debug("jobs ranked",
		append(logger.ProfileFields(profile.ID, string(profile.Role)), zap.Int("jobs", len(ranked)))...,
	)

	return ranked, nil
}

func SortRanked(ranked []Ranked) {
	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return marketplace.CompareRecent(a.Job, b.Job)
	})
}
