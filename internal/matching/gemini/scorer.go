package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/logger"
	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/matching"
	"github.com/spigell/joblink/internal/utils"
)

const (
	systemInstruction   = "You are a strict JSON scoring service for a job marketplace."
	defaultMaxLogLength = 200
)

//go:embed prompt.md
var promptTemplate string

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

// Scorer asks Gemini for a match score. Scores are cached per profile and job
// content, and the rule-based score is used whenever the provider fails.
type Scorer struct {
	generator contentGenerator
	fallback  matching.Scorer
	logger    *zap.Logger
	maxLogLen int

	mu    sync.RWMutex
	cache map[string]int
}

func NewScorer(generator contentGenerator, fallback matching.Scorer, maxLogLength int, log *zap.Logger) *Scorer {
	if fallback == nil {
		fallback = matching.RuleScorer{}
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Scorer{
		generator: generator,
		fallback:  fallback,
		logger:    log,
		maxLogLen: maxLogLength,
		cache:     make(map[string]int),
	}
}

type profilePayload struct {
	Skills        []string `json:"skills"`
	Location      string   `json:"location"`
	Experience    string   `json:"experience,omitempty"`
	Rating        float64  `json:"rating"`
	CompletedJobs int      `json:"completedJobs"`
}

type jobPayload struct {
	Title          string   `json:"title"`
	Category       string   `json:"category,omitempty"`
	Location       string   `json:"location"`
	RequiredSkills []string `json:"requiredSkills"`
	Description    string   `json:"description,omitempty"`
	Urgent         bool     `json:"urgent"`
}

func (s *Scorer) Score(ctx context.Context, profile *marketplace.Profile, job *marketplace.Job) (int, error) {
	if profile == nil {
		return 0, fmt.Errorf("profile is required")
	}
	if job == nil {
		return 0, fmt.Errorf("job is required")
	}

	profileJSON, err := json.MarshalIndent(profilePayload{
		Skills:        profile.Skills,
		Location:      profile.Location,
		Experience:    profile.Experience,
		Rating:        profile.Rating,
		CompletedJobs: profile.CompletedJobs,
	}, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal profile payload: %w", err)
	}

	jobJSON, err := json.MarshalIndent(jobPayload{
		Title:          job.Title,
		Category:       job.Category,
		Location:       job.Location,
		RequiredSkills: job.RequiredSkills,
		Description:    job.Description,
		Urgent:         job.Urgent,
	}, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal job payload: %w", err)
	}

	key := cacheKey(profileJSON, jobJSON)
	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	fields := append(logger.JobFields(job.ID, job.EmployerID), zap.String(logger.FieldWorkerID, profile.ID))

	if s.generator == nil {
		return s.fallback.Score(ctx, profile, job)
	}

	prompt := buildPrompt(string(profileJSON), string(jobJSON))
	s.logger.Debug("gemini generate content request", append(fields,
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)...)

	raw, err := s.generator.GenerateContent(ctx, systemInstruction, prompt)
	if err == nil {
		var score int
		score, err = parseResponse(raw)
		if err == nil {
			s.logger.Debug("gemini generate content response", append(fields,
				zap.Int("score", score),
				zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
			)...)

			s.mu.Lock()
			s.cache[key] = score
			s.mu.Unlock()
			return score, nil
		}
	}

	s.logger.Warn("gemini scoring failed, using rule-based score", append(fields, zap.Error(err))...)
	return s.fallback.Score(ctx, profile, job)
}

func cacheKey(profileJSON, jobJSON []byte) string {
	h := sha256.New()
	h.Write(profileJSON)
	h.Write([]byte{0})
	h.Write(jobJSON)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func buildPrompt(profileJSON, jobJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Worker:\n{{PROFILE_JSON}}\n\nJob:\n{{JOB_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{PROFILE_JSON}}", profileJSON)
	prompt = strings.ReplaceAll(prompt, "{{JOB_JSON}}", jobJSON)
	return prompt
}

func parseResponse(raw string) (int, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return 0, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return 0, fmt.Errorf("gemini response has no numeric score")
	}
	// Scores in the 0..1 range are treated as fractions.
	if score > 0 && score < 1 {
		score *= 100
	}

	return matching.Clamp(int(math.Round(score))), nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "%"))
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
