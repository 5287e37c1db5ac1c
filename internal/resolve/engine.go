// Package resolve turns abstract field requests into writes on concrete form elements.
// Each intent has a prioritized chain of strategies; the first that writes a verified
// value wins.
package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document"
)

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers a callback for every strategy the engine enters.
func WithObserver(observer StepObserver) Option {
	return func(e *Engine) { e.observer = observer }
}

// Engine resolves requests against one session's document. It is not safe for
// concurrent use; a session's reads and writes are sequential.
type Engine struct {
	doc      document.Adapter
	cfg      config.ResolverConfig
	writer   *Writer
	logger   *zap.Logger
	observer StepObserver
}

// New builds an engine over doc.
func New(doc document.Adapter, cfg config.ResolverConfig, logger *zap.Logger, opts ...Option) *Engine {
	logger = logger.Named("resolver")
	e := &Engine{
		doc:    doc,
		cfg:    cfg,
		writer: NewWriter(doc, logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve runs the primary chain for req.
func (e *Engine) Resolve(ctx context.Context, req schemas.FieldRequest) schemas.ResolutionResult {
	return e.ChainFor(req.Intent).Resolve(ctx, req)
}

// Repair runs the aggressive attribute-based chain for req.
func (e *Engine) Repair(ctx context.Context, req schemas.FieldRequest) schemas.ResolutionResult {
	return e.AggressiveFor(req.Intent).Resolve(ctx, req)
}

// ChainFor returns the primary chain: label-driven strategies first, then attribute
// heuristics gated by strictness.
func (e *Engine) ChainFor(intent schemas.FieldIntent) *Chain {
	var steps []Step
	switch intent {
	case schemas.IntentCity, schemas.IntentPostalCode:
		steps = append(steps,
			Step{schemas.StrategyAccessibleLabel, e.accessibleLabel},
			Step{schemas.StrategyGroupRow, e.groupRow},
			Step{schemas.StrategyNearestLabel, e.nearestLabel},
		)
		steps = append(steps, e.attributeSteps(intent)...)
	case schemas.IntentLastName:
		steps = []Step{
			{schemas.StrategyAccessibleLabel, e.accessibleLabel},
			{schemas.StrategyGroupRow, e.groupRow},
			{schemas.StrategyNearestLabel, e.nearestLabel},
			{schemas.StrategySelectorProbe, e.selectorProbe(lastNameProbes, nil)},
		}
	case schemas.IntentAddress:
		steps = []Step{
			{schemas.StrategyAccessibleLabel, e.accessibleLabel},
			{schemas.StrategyGroupRow, e.groupRow},
			{schemas.StrategySelectorProbe, e.selectorProbe(addressProbes, nil)},
		}
	case schemas.IntentMobile:
		steps = []Step{
			{schemas.StrategyAccessibleLabel, e.accessibleMobile},
			{schemas.StrategySelectorProbe, e.selectorProbe(mobileProbes, hasDialCode)},
		}
	case schemas.IntentCountry:
		steps = []Step{
			{schemas.StrategyAccessibleLabel, e.accessibleSelect},
			{schemas.StrategyOptionMatch, e.keywordSelect("country")},
		}
	case schemas.IntentGender:
		steps = []Step{
			{schemas.StrategyAccessibleLabel, e.accessibleSelect},
			{schemas.StrategyOptionMatch, e.keywordSelect("gender")},
		}
	case schemas.IntentAdminDivision:
		steps = []Step{
			{schemas.StrategyNotRequired, divisionNotRequired},
			{schemas.StrategyAccessibleLabel, e.accessibleSelect},
			{schemas.StrategyKindSelect, e.kindSelect},
			{schemas.StrategySelectScan, e.selectScan},
		}
	case schemas.IntentAcceptTerms:
		steps = []Step{{schemas.StrategyToggle, e.acceptTerms}}
	}
	return NewChain(e.logger, e.observer, steps...)
}

// AggressiveFor returns the repair chain. It skips label strategies that already failed
// during resolution.
func (e *Engine) AggressiveFor(intent schemas.FieldIntent) *Chain {
	var steps []Step
	switch intent {
	case schemas.IntentCity, schemas.IntentPostalCode:
		steps = e.attributeSteps(intent)
	case schemas.IntentAdminDivision:
		steps = []Step{
			{schemas.StrategyNotRequired, divisionNotRequired},
			{schemas.StrategyKindSelect, e.kindSelect},
			{schemas.StrategySelectScan, e.selectScan},
		}
	case schemas.IntentCountry:
		steps = []Step{{schemas.StrategyOptionMatch, e.keywordSelect("country")}}
	default:
		return e.ChainFor(intent)
	}
	return NewChain(e.logger, e.observer, steps...)
}

// attributeSteps are the keyword and positional strategies for city and postal code.
func (e *Engine) attributeSteps(intent schemas.FieldIntent) []Step {
	profile := cityProfile
	if intent == schemas.IntentPostalCode {
		profile = postalProfile
	}
	steps := []Step{{schemas.StrategySelectorProbe, e.selectorProbe(profile.probes, nil)}}
	if e.cfg.AllowsScan() {
		steps = append(steps, Step{schemas.StrategyPositionalScan, e.positionalScan(profile)})
	}
	return append(steps, Step{schemas.StrategyDocumentWrite, e.documentWrite(profile)})
}

// ClearPostcode empties the first postcode-like input. UK forms keep a stale formatted
// postcode that blocks a fresh write.
func (e *Engine) ClearPostcode(ctx context.Context) error {
	snap, err := e.doc.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, n := range snap.Elements("input") {
		if n.InputType() != "text" {
			continue
		}
		if !ukPostcodeRe.MatchString(hint(n) + " " + n.Attr("aria-label")) {
			continue
		}
		if n.Value == "" {
			return nil
		}
		if err := e.writer.Clear(ctx, n.Handle); err != nil {
			return fmt.Errorf("failed to clear postcode field: %w", err)
		}
		e.logger.Debug("Cleared postcode field.", zap.String("element", document.Describe(n).String()))
		return nil
	}
	return nil
}

// fill writes value into n and returns its descriptor.
func (e *Engine) fill(ctx context.Context, n *document.Node, value string) (*schemas.ElementDescriptor, error) {
	if err := e.writer.Fill(ctx, n.Handle, value); err != nil {
		return nil, err
	}
	d := document.Describe(n)
	return &d, nil
}
