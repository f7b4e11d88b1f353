package runner

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/streamload/internal/pacer"
)

// ArrivalModel selects how client launches are spaced.
type ArrivalModel string

const (
	// ArrivalModelUniform launches one client every Stagger.
	ArrivalModelUniform ArrivalModel = "uniform"
	// ArrivalModelPoisson draws exponential gaps with mean Stagger.
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// ParseArrivalModel maps a config value to a model, defaulting to uniform.
func ParseArrivalModel(s string) ArrivalModel {
	if ArrivalModel(s) == ArrivalModelPoisson {
		return ArrivalModelPoisson
	}
	return ArrivalModelUniform
}

type arrivalController interface {
	Wait(ctx context.Context) error
}

func newArrivalController(opt Options) arrivalController {
	switch opt.ArrivalModel {
	case ArrivalModelPoisson:
		return &poissonArrival{mean: opt.Stagger, src: opt.Source}
	default:
		return &uniformArrival{limiter: opt.LimiterFactory(opt.Stagger)}
	}
}

// uniformArrival delegates pacing to a rate.Limiter (uniform spacing).
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if u == nil || u.limiter == nil {
		return ctx.Err()
	}
	return u.limiter.Wait(ctx)
}

// poissonArrival samples exponential inter-arrival gaps. The first launch
// is immediate.
type poissonArrival struct {
	mean    time.Duration
	src     pacer.Source
	started bool
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	if !p.started {
		p.started = true
		return ctx.Err()
	}
	delay := p.nextDelay()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) nextDelay() time.Duration {
	if p.mean <= 0 || p.src == nil {
		return 0
	}
	// Inverse CDF of the exponential distribution; 1-u keeps the log finite.
	u := p.src.Float64()
	value := -math.Log(1 - u)
	delay := float64(p.mean) * value
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}
