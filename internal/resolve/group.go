package resolve

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
)

// rowClassTokens mark a grouping container outright. Class names that merely contain one of
// rowClassFragments also qualify.
var (
	rowClassTokens    = []string{"form-group", "form-row", "row"}
	rowClassFragments = []string{"field", "group", "col"}
)

type scored struct {
	node *document.Node
	cost float64
}

// groupRow finds a label matching the request, takes its row container and writes the
// cheapest writable control inside it. An empty row falls through to the first of the
// next few siblings that holds any control.
func (e *Engine) groupRow(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	snap, err := e.doc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, label := range labelCandidates(snap, compile(req.LabelPatterns), labelTags) {
		row, ok := snap.Closest(label.Handle, isRowContainer)
		if !ok {
			if row, ok = snap.Parent(label.Handle); !ok {
				continue
			}
		}

		candidates := entriesUnder(snap, row)
		if len(candidates) == 0 {
			for _, sib := range snap.NextSiblings(row.Handle, e.cfg.SiblingProbeLimit) {
				if writableEntry(sib) {
					candidates = append(candidates, sib)
				}
				candidates = append(candidates, entriesUnder(snap, sib)...)
				if len(candidates) > 0 {
					break
				}
			}
		}
		if req.ExcludeAddressish {
			candidates = dropAddressish(candidates)
		}
		if len(candidates) == 0 {
			continue
		}

		ranked := e.rankInRow(label, candidates, req.Preference)
		best := ranked[0]
		e.logger.Debug("Row candidate chosen.",
			zap.String("intent", string(req.Intent)),
			zap.String("label", label.Text),
			zap.Int("candidates", len(ranked)),
			zap.Float64("cost", best.cost))
		return e.fill(ctx, best.node, req.TargetValue)
	}
	return nil, ErrNonMatch
}

// rankInRow orders candidates by ascending cost. Ties keep document order.
func (e *Engine) rankInRow(label *document.Node, candidates []*document.Node, pref schemas.Preference) []scored {
	out := make([]scored, len(candidates))
	for i, c := range candidates {
		out[i] = scored{node: c, cost: e.rowCost(label, c, pref)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].cost < out[j].cost })
	return out
}

func (e *Engine) rowCost(label, input *document.Node, pref schemas.Preference) float64 {
	var cost float64
	switch {
	case pref == schemas.PreferZipish && isZipish(input):
		cost -= e.cfg.PreferenceBonus
	case pref == schemas.PreferCityish && isCityish(input):
		cost -= e.cfg.PreferenceBonus
	}
	if input.Box.Top() < label.Box.Top()-e.cfg.RowTolerancePx {
		cost += e.cfg.AbovePenalty
	}
	if input.Box.Left() < label.Box.Left() {
		cost += e.cfg.LeftPenalty
	}
	return cost
}

// isRowContainer recognizes the grouping conventions of common form frameworks.
func isRowContainer(n *document.Node) bool {
	for _, class := range strings.Fields(strings.ToLower(n.Attr("class"))) {
		for _, tok := range rowClassTokens {
			if class == tok {
				return true
			}
		}
		for _, frag := range rowClassFragments {
			if strings.Contains(class, frag) {
				return true
			}
		}
	}
	return false
}

// labelCandidates returns visible label-like elements whose text matches, innermost only:
// an element is skipped when it wraps a form control or another matching label-like element.
func labelCandidates(snap *document.Snapshot, res []*regexp.Regexp, tags []string) []*document.Node {
	var out []*document.Node
	isTag := make(map[string]bool, len(tags))
	for _, t := range tags {
		isTag[t] = true
	}
	for _, n := range snap.Elements(tags...) {
		if !n.Visible || !matchesAny(res, n.Text) {
			continue
		}
		inner := true
		for _, d := range snap.Descendants(n.Handle) {
			if isControl(d) || (isTag[d.Tag] && d.Visible && matchesAny(res, d.Text)) {
				inner = false
				break
			}
		}
		if inner {
			out = append(out, n)
		}
	}
	return out
}

func entriesUnder(snap *document.Snapshot, n *document.Node) []*document.Node {
	var out []*document.Node
	for _, d := range snap.Descendants(n.Handle) {
		if writableEntry(d) {
			out = append(out, d)
		}
	}
	return out
}

func dropAddressish(nodes []*document.Node) []*document.Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if !isAddressish(n) {
			out = append(out, n)
		}
	}
	return out
}

func isControl(n *document.Node) bool {
	switch n.Tag {
	case "input", "textarea", "select":
		return true
	}
	return false
}
