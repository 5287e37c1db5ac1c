package resolve

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
)

// StepFunc tries to resolve and fill one request. It returns the descriptor of the element
// it wrote on success; a nil descriptor with a nil error means the field needs no element.
// Any error is a non-match for this step.
type StepFunc func(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error)

// Step is a named strategy.
type Step struct {
	Strategy schemas.Strategy
	Run      StepFunc
}

// StepObserver is told about every step the chain enters.
type StepObserver func(intent schemas.FieldIntent, strategy schemas.Strategy)

// Chain composes steps in priority order. The first step that succeeds wins; the rest are
// never entered.
type Chain struct {
	steps    []Step
	logger   *zap.Logger
	observer StepObserver
}

// NewChain builds a chain over steps.
func NewChain(logger *zap.Logger, observer StepObserver, steps ...Step) *Chain {
	return &Chain{steps: steps, logger: logger, observer: observer}
}

// Strategies lists the step names in order.
func (c *Chain) Strategies() []schemas.Strategy {
	out := make([]schemas.Strategy, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.Strategy
	}
	return out
}

// Resolve runs the chain. It never returns an error: faults, panics and verification
// failures all fall through to the next step, and exhaustion is a NoMatch result.
func (c *Chain) Resolve(ctx context.Context, req schemas.FieldRequest) schemas.ResolutionResult {
	for _, step := range c.steps {
		if ctx.Err() != nil {
			c.logger.Debug("Resolution abandoned.", zap.String("intent", string(req.Intent)), zap.Error(ctx.Err()))
			break
		}
		if c.observer != nil {
			c.observer(req.Intent, step.Strategy)
		}
		desc, err := c.run(ctx, step, req)
		if err == nil {
			c.logger.Debug("Field resolved.",
				zap.String("intent", string(req.Intent)),
				zap.String("strategy", string(step.Strategy)),
				zap.Stringer("element", descStringer{desc}))
			return schemas.Matched(step.Strategy, desc)
		}
		var verr *WriteVerificationError
		switch {
		case errors.As(err, &verr):
			c.logger.Debug("Write verification failed.",
				zap.String("intent", string(req.Intent)),
				zap.String("strategy", string(step.Strategy)),
				zap.String("want", verr.Want), zap.String("got", verr.Got))
		case errors.Is(err, ErrNonMatch):
			c.logger.Debug("No match.", zap.String("intent", string(req.Intent)), zap.String("strategy", string(step.Strategy)))
		default:
			c.logger.Debug("Strategy fault treated as no match.",
				zap.String("intent", string(req.Intent)),
				zap.String("strategy", string(step.Strategy)),
				zap.Error(err))
		}
	}
	return schemas.NoMatch()
}

func (c *Chain) run(ctx context.Context, step Step, req schemas.FieldRequest) (desc *schemas.ElementDescriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			desc, err = nil, &StepPanicError{Value: r}
		}
	}()
	return step.Run(ctx, req)
}

type descStringer struct{ d *schemas.ElementDescriptor }

func (s descStringer) String() string {
	if s.d == nil {
		return "<none>"
	}
	return s.d.String()
}
