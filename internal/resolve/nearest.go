package resolve

import (
	"context"
	"math"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
)

var nearestLabelTags = append([]string{"legend"}, labelTags...)

// nearestLabel pairs each matching label with the writable control closest to its
// vertical center anywhere in the document. The first label with an input inside the
// vertical tolerance wins.
func (e *Engine) nearestLabel(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	snap, err := e.doc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var inputs []*document.Node
	for _, n := range snap.Elements("input", "textarea") {
		if !writableEntry(n) || (req.ExcludeAddressish && isAddressish(n)) {
			continue
		}
		inputs = append(inputs, n)
	}
	if len(inputs) == 0 {
		return nil, ErrNonMatch
	}

	for _, label := range labelCandidates(snap, compile(req.LabelPatterns), nearestLabelTags) {
		var best *document.Node
		bestCost := math.Inf(1)
		for _, in := range inputs {
			cost, ok := e.nearestCost(label, in)
			if ok && cost < bestCost {
				best, bestCost = in, cost
			}
		}
		if best != nil {
			return e.fill(ctx, best, req.TargetValue)
		}
	}
	return nil, ErrNonMatch
}

// nearestCost is vertical distance plus a left-of-label penalty and a small horizontal
// gap term. Inputs outside the vertical tolerance do not qualify.
func (e *Engine) nearestCost(label, input *document.Node) (float64, bool) {
	dy := math.Abs(input.Box.CenterY() - label.Box.CenterY())
	if dy >= e.cfg.VerticalTolerancePx {
		return 0, false
	}
	cost := dy
	if input.Box.Left() < label.Box.Left() {
		cost += e.cfg.NearestLeftPenalty
	}
	cost += e.cfg.HorizontalWeight * math.Abs(input.Box.Left()-label.Box.Right())
	return cost, true
}
