package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samcharles93/charrnn/internal/logger"
	"github.com/samcharles93/charrnn/internal/logits"
	"github.com/samcharles93/charrnn/internal/model"
)

// DefaultSeedText starts every prediction.
const DefaultSeedText = "I"

var ErrInvalidLength = errors.New("inference: length must not be negative")

type Options struct {
	Model     model.Model
	Tokenizer Vocabulary

	Temperature float32
	TopK        int
	TopP        float32
	// Seed >= 0 makes every Predict call reproducible. A negative seed draws
	// from a clock-seeded stream shared across calls.
	Seed int64
	// SeedText defaults to DefaultSeedText.
	SeedText string
}

type Stats struct {
	CharsGenerated int
	Duration       time.Duration
	CPS            float64
}

// Service turns a trained model into complete predictions. Calls are
// serialised, so a Service may be shared by concurrent request handlers.
type Service struct {
	mu       sync.Mutex
	step     *OneStep
	seed     int64
	seedText string
}

func NewService(opts Options) (*Service, error) {
	seedText := opts.SeedText
	if seedText == "" {
		seedText = DefaultSeedText
	}
	samplerSeed := opts.Seed
	if samplerSeed < 0 {
		samplerSeed = time.Now().UnixNano()
	}
	step, err := NewOneStep(opts.Model, opts.Tokenizer, logits.SamplerConfig{
		Seed:        samplerSeed,
		Temperature: opts.Temperature,
		TopK:        opts.TopK,
		TopP:        opts.TopP,
	})
	if err != nil {
		return nil, err
	}
	return &Service{
		step:     step,
		seed:     opts.Seed,
		seedText: seedText,
	}, nil
}

// Predict generates length characters after the seed text and returns the
// seed followed by them.
func (s *Service) Predict(ctx context.Context, length int) (string, error) {
	text, _, err := s.Generate(ctx, length)
	return text, err
}

// Generate is Predict with generation statistics.
func (s *Service) Generate(ctx context.Context, length int) (string, Stats, error) {
	var stats Stats
	if length < 0 {
		return "", stats, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if err := ctx.Err(); err != nil {
		return "", stats, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed >= 0 {
		s.step.Reseed(s.seed)
	}

	var sb strings.Builder
	sb.WriteString(s.seedText)
	next := s.seedText
	var state model.State
	start := time.Now()
	for i := range length {
		if err := ctx.Err(); err != nil {
			return "", stats, err
		}
		ch, st, err := s.step.GenerateOneStep(next, state)
		if err != nil {
			return "", stats, fmt.Errorf("step %d: %w", i, err)
		}
		sb.WriteString(ch)
		next, state = ch, st
		stats.CharsGenerated++
	}
	stats.Duration = time.Since(start)
	if stats.Duration.Seconds() > 0 {
		stats.CPS = float64(stats.CharsGenerated) / stats.Duration.Seconds()
	}

	logger.FromContext(ctx).Debug("prediction complete",
		"length", length,
		"duration", stats.Duration,
		"chars_per_sec", stats.CPS,
	)
	return sb.String(), stats, nil
}
