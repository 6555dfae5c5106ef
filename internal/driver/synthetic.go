package driver

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"loadtest-engine/internal/aggregate"
	"loadtest-engine/internal/plan"
)

const syntheticDriverName = "synthetic"

// Synthetic fabricates a plausible run from the plan alone. Counts are exact functions of the
// plan; latencies, active users and data volumes are drawn from rng within fixed bounds.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSynthetic uses rng for every random draw. A nil rng is seeded randomly.
func NewSynthetic(rng *rand.Rand) *Synthetic {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Synthetic{rng: rng, now: time.Now}
}

func (s *Synthetic) Name() string { return syntheticDriverName }

func (s *Synthetic) Start(ctx context.Context, p *plan.Plan) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return &Handle{RunID: uuid.NewString(), Plan: p, StartedAt: s.now()}, nil
}

func (s *Synthetic) Await(ctx context.Context, h *Handle, _ time.Duration) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return &StateArtifact{State: s.Generate(h.Plan, h.StartedAt)}, nil
}

func (s *Synthetic) Cleanup(*Handle) error { return nil }

// Generate builds the aggregate state of a synthetic run starting at start.
//
//	total   = floor(D/1000 * V * 0.8), failed = floor(total * 0.05)
//	samples = min(30, floor(D/1000)), sample i labelled i*(D/1000/samples) seconds as MM:SS
//	avg in [100,250) ms, min = floor(avg*0.7), max = floor(avg*2.5)
//	status 200 = total-failed, 404 = floor(failed*0.3), 500 = floor(failed*0.7)
func (s *Synthetic) Generate(p *plan.Plan, start time.Time) *aggregate.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	vus := p.VirtualUsers
	seconds := float64(p.HoldDuration.Milliseconds()) / 1000
	total := int64(math.Floor(seconds * float64(vus) * 0.8))
	failed := int64(math.Floor(float64(total) * 0.05))
	sampleCount := min(aggregate.MaxSamples, int(math.Floor(seconds)))

	state := aggregate.New(vus, nil)
	for i := range sampleCount {
		offset := float64(i) * (seconds / float64(sampleCount))
		state.Samples = append(state.Samples, aggregate.Sample{
			At:           start.Add(time.Duration(offset * float64(time.Second))),
			Time:         clockLabel(offset),
			ResponseTime: s.rng.IntN(200) + 100,
			ActiveUsers:  s.rng.IntN(vus) + 1,
		})
	}

	avg := float64(s.rng.IntN(150) + 100)
	state.TotalRequests = total
	state.FailedRequests = failed
	if total > 0 {
		state.SumResponseTime = avg * float64(total)
		state.MinResponseTime = math.Floor(avg * 0.7)
		state.MaxResponseTime = math.Floor(avg * 2.5)
		state.DurationPoints = total
	}

	state.StatusCodes["200"] = total - failed
	state.StatusCodes["404"] = int64(math.Floor(float64(failed) * 0.3))
	state.StatusCodes["500"] = int64(math.Floor(float64(failed) * 0.7))

	// 1.0-6.0 MB received with one decimal, 100-600 kB sent
	state.BytesReceived = math.Round((s.rng.Float64()*5+1)*10) / 10 * 1e6
	state.BytesSent = math.Round(s.rng.Float64()*500+100) * 1e3

	return state
}

func clockLabel(seconds float64) string {
	return fmt.Sprintf("%02d:%02d", int(math.Floor(seconds/60)), int(math.Floor(math.Mod(seconds, 60))))
}
