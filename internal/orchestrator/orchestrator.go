// Package orchestrator drives one form through resolution, validation and a single
// bounded repair pass. It is injected with its collaborators through interfaces.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/observability"
	"github.com/xkilldash9x/formsmith/internal/resolve"
)

// FieldResolver resolves and repairs single fields. *resolve.Engine implements it.
type FieldResolver interface {
	Resolve(ctx context.Context, req schemas.FieldRequest) schemas.ResolutionResult
	Repair(ctx context.Context, req schemas.FieldRequest) schemas.ResolutionResult
	ClearPostcode(ctx context.Context) error
}

// FormValidator reports which mandatory fields hold a plausible value.
type FormValidator interface {
	Validate(ctx context.Context, country string) (schemas.ValidationReport, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records per-field and per-form outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSleep replaces the settle wait.
func WithSleep(sleep SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// Orchestrator runs the per-form state machine:
// Resolving → Validating → (Repairing → Validating)? → Done | Unrecoverable.
type Orchestrator struct {
	cfg       config.ResolverConfig
	logger    *zap.Logger
	resolver  FieldResolver
	validator FormValidator
	metrics   *observability.Metrics
	sleep     SleepFunc
}

// New creates an Orchestrator over one session's resolver and validator.
func New(cfg config.ResolverConfig, logger *zap.Logger, resolver FieldResolver, validator FormValidator, opts ...Option) (*Orchestrator, error) {
	if logger == nil || resolver == nil || validator == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		resolver:  resolver,
		validator: validator,
		sleep:     Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run resolves every request of plan, validates, and repairs failing mandatory fields
// once. An unrecoverable form is a normal outcome, not an error; errors are reserved for
// cancellation and validator faults.
func (o *Orchestrator) Run(ctx context.Context, plan *resolve.Plan) (*schemas.FormOutcome, error) {
	outcome := &schemas.FormOutcome{
		State:   schemas.StateResolving,
		Results: make(map[schemas.FieldIntent]schemas.ResolutionResult, len(plan.Requests)+1),
	}
	logger := o.logger.With(zap.String("country", plan.Country))

	if plan.UK {
		if err := o.resolver.ClearPostcode(ctx); err != nil {
			logger.Debug("Could not clear prefilled postcode.", zap.Error(err))
		}
	}
	if !plan.Division.Required() {
		res := schemas.Matched(schemas.StrategyNotRequired, nil)
		outcome.Results[schemas.IntentAdminDivision] = res
		o.metrics.RecordResolution(schemas.IntentAdminDivision, res)
	}

	for _, req := range plan.Requests {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		res := o.resolver.Resolve(ctx, req)
		outcome.Results[req.Intent] = res
		o.metrics.RecordResolution(req.Intent, res)
		if !res.Matched {
			logger.Debug("Field unresolved.", zap.String("intent", string(req.Intent)))
			continue
		}
		if err := o.settleAfter(ctx, req.Intent); err != nil {
			return outcome, err
		}
	}

	outcome.State = schemas.StateValidating
	report, err := o.validator.Validate(ctx, plan.Country)
	if err != nil {
		return outcome, fmt.Errorf("validation failed: %w", err)
	}
	outcome.Report = report
	if report.Valid {
		return o.finish(logger, outcome, schemas.StateDone), nil
	}

	outcome.State = schemas.StateRepairing
	for _, intent := range report.Failing() {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		req, ok := plan.Request(intent)
		if !ok {
			continue
		}
		res := o.resolver.Repair(ctx, req)
		o.metrics.RecordRepair(intent, res.Matched)
		outcome.Repaired = append(outcome.Repaired, intent)
		if !res.Matched {
			continue
		}
		outcome.Results[intent] = res
		if err := o.settleAfter(ctx, intent); err != nil {
			return outcome, err
		}
	}

	outcome.State = schemas.StateValidating
	report, err = o.validator.Validate(ctx, plan.Country)
	if err != nil {
		return outcome, fmt.Errorf("validation after repair failed: %w", err)
	}
	outcome.Report = report
	if report.Valid {
		return o.finish(logger, outcome, schemas.StateDone), nil
	}
	outcome.Failed = report.Failing()
	return o.finish(logger, outcome, schemas.StateUnrecoverable), nil
}

// settleAfter gives country-dependent widgets time to rebuild before the division
// field is read.
func (o *Orchestrator) settleAfter(ctx context.Context, intent schemas.FieldIntent) error {
	if intent != schemas.IntentCountry || o.cfg.CountrySettle <= 0 {
		return nil
	}
	return o.sleep(ctx, o.cfg.CountrySettle)
}

func (o *Orchestrator) finish(logger *zap.Logger, outcome *schemas.FormOutcome, state schemas.FormState) *schemas.FormOutcome {
	outcome.State = state
	o.metrics.RecordForm(state)
	if state == schemas.StateUnrecoverable {
		failed := make([]string, len(outcome.Failed))
		for i, f := range outcome.Failed {
			failed[i] = string(f)
		}
		logger.Warn("Form still invalid after repair.", zap.Strings("failed", failed))
		return outcome
	}
	logger.Info("Form resolved.", zap.Int("repaired", len(outcome.Repaired)))
	return outcome
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
