package resolve

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
)

// attrProbe matches controls whose attribute contains keyword, ignoring case.
type attrProbe struct {
	attr    string
	keyword string
}

func (p attrProbe) matches(n *document.Node) bool {
	v := n.Attr(p.attr)
	return v != "" && containsFold(v, p.keyword)
}

var (
	lastNameProbes = []attrProbe{
		{"name", "lastname"}, {"name", "last_name"}, {"name", "surname"},
		{"id", "lastname"}, {"id", "last_name"}, {"placeholder", "last name"},
	}
	mobileProbes = []attrProbe{
		{"name", "mobile"}, {"id", "mobile"}, {"name", "phone"}, {"id", "phone"},
		{"type", "tel"}, {"placeholder", "mobile"},
	}
	addressProbes = []attrProbe{
		{"name", "address"}, {"id", "address"}, {"placeholder", "address"}, {"name", "street"},
	}
)

// fieldProfile holds the keyword and positional heuristics for one intent.
type fieldProfile struct {
	intent   schemas.FieldIntent
	probes   []attrProbe
	// keywords match attribute hints and label text. Localized words belong in scan.
	keywords []string
	// scan decides whether the i-th text input qualifies during a positional scan.
	scan func(n *document.Node, i int, req schemas.FieldRequest, positional bool) bool
	// maxLength accepts a 5 or 6 character limit as an attribute hit.
	maxLength bool
	// fallback allows the first empty short input as a last resort.
	fallback bool
}

var cityProfile = fieldProfile{
	intent: schemas.IntentCity,
	probes: []attrProbe{
		{"placeholder", "city"}, {"name", "city"}, {"id", "city"},
	},
	keywords: []string{"city", "town"},
	scan: func(n *document.Node, i int, _ schemas.FieldRequest, positional bool) bool {
		ph := strings.ToLower(n.Attr("placeholder"))
		if strings.Contains(ph, "city") || strings.Contains(ph, "ville") {
			return true
		}
		return positional && ph == "" && i >= 1 && i <= 5
	},
}

var postalProfile = fieldProfile{
	intent: schemas.IntentPostalCode,
	probes: []attrProbe{
		{"placeholder", "zip"}, {"placeholder", "code"}, {"placeholder", "postal"},
		{"name", "zip"}, {"name", "postal"},
		{"id", "zip"}, {"id", "postal"},
	},
	keywords: []string{"zip", "postal", "postcode", "code postal"},
	scan: func(n *document.Node, i int, req schemas.FieldRequest, positional bool) bool {
		ph := strings.ToLower(n.Attr("placeholder"))
		if strings.Contains(ph, "zip") || strings.Contains(ph, "postal") || strings.Contains(ph, "code") {
			return true
		}
		if ml := document.Describe(n).MaxLength; ml == 5 || ml == 6 {
			return true
		}
		if p := n.Attr("pattern"); strings.Contains(p, "[0-9]") || strings.Contains(p, `\d`) {
			return true
		}
		return positional && ph == "" && digitsRe.MatchString(req.TargetValue) && i >= 2
	},
	maxLength: true,
	fallback:  true,
}

// selectorProbe tries each probe in order against writable text controls. skip rejects
// controls the probe would otherwise accept.
func (e *Engine) selectorProbe(probes []attrProbe, skip func(*document.Node) bool) StepFunc {
	return func(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
		snap, err := e.doc.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		controls := snap.Elements("input", "textarea")
		lastErr := ErrNonMatch
		for _, p := range probes {
			for _, n := range controls {
				if !writableEntry(n) || !p.matches(n) {
					continue
				}
				if (skip != nil && skip(n)) || (req.ExcludeAddressish && isAddressish(n)) {
					continue
				}
				desc, err := e.fill(ctx, n, req.TargetValue)
				if err == nil {
					return desc, nil
				}
				lastErr = err
				break
			}
		}
		return nil, lastErr
	}
}

// positionalScan walks text inputs in document order. Indexes count every text input so
// the positional window is stable whether or not earlier ones are visible.
func (e *Engine) positionalScan(profile fieldProfile) StepFunc {
	return func(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
		snap, err := e.doc.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		positional := e.cfg.AllowsPositional()
		lastErr := ErrNonMatch
		i := -1
		for _, n := range snap.Elements("input") {
			if n.InputType() != "text" {
				continue
			}
			i++
			if !writableEntry(n) || disqualified(n, req.TargetValue) {
				continue
			}
			if req.ExcludeAddressish && isAddressish(n) {
				continue
			}
			if !profile.scan(n, i, req, positional) {
				continue
			}
			desc, err := e.fill(ctx, n, req.TargetValue)
			if err == nil {
				return desc, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// disqualified reports a control that already holds another field's content: an address
// or an unrelated number.
func disqualified(n *document.Node, target string) bool {
	v := strings.TrimSpace(n.Value)
	if v == "" || v == target {
		return false
	}
	lower := strings.ToLower(v)
	return strings.Contains(lower, "street") || strings.Contains(lower, "avenue") || digitsRe.MatchString(v)
}

// documentWrite writes through the first attribute hit, else through the control a
// keyword label points at. Postal codes may finally fall back to the first short empty
// text input after the first one when positional guesses are allowed.
func (e *Engine) documentWrite(profile fieldProfile) StepFunc {
	return func(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
		snap, err := e.doc.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if n := attributeHit(snap, profile, req); n != nil {
			return e.fill(ctx, n, req.TargetValue)
		}
		if n := labelHit(snap, profile, req); n != nil {
			return e.fill(ctx, n, req.TargetValue)
		}
		if profile.fallback && e.cfg.AllowsPositional() {
			i := -1
			for _, n := range snap.Elements("input") {
				if n.InputType() != "text" {
					continue
				}
				i++
				if i == 0 || !writableEntry(n) || n.Value != "" {
					continue
				}
				if ml := document.Describe(n).MaxLength; ml >= 1 && ml <= 10 {
					e.logger.Debug("Falling back to first short empty input.",
						zap.String("intent", string(req.Intent)), zap.Int("index", i))
					return e.fill(ctx, n, req.TargetValue)
				}
			}
		}
		return nil, ErrNonMatch
	}
}

func attributeHit(snap *document.Snapshot, profile fieldProfile, req schemas.FieldRequest) *document.Node {
	for _, n := range snap.Elements("input", "textarea") {
		if !writableEntry(n) || (req.ExcludeAddressish && isAddressish(n)) {
			continue
		}
		h := hint(n)
		for _, kw := range profile.keywords {
			if containsFold(h, kw) {
				return n
			}
		}
		if profile.maxLength {
			if ml := document.Describe(n).MaxLength; ml == 5 || ml == 6 {
				return n
			}
		}
	}
	return nil
}

func labelHit(snap *document.Snapshot, profile fieldProfile, req schemas.FieldRequest) *document.Node {
	for _, label := range snap.Elements("label") {
		if !keywordIn(label.Text, profile.keywords) {
			continue
		}
		target, ok := snap.LabelTarget(label)
		if !ok {
			target = nextInput(snap, label)
		}
		if target == nil || !writableEntry(target) || (req.ExcludeAddressish && isAddressish(target)) {
			continue
		}
		return target
	}
	return nil
}

func nextInput(snap *document.Snapshot, n *document.Node) *document.Node {
	for _, sib := range snap.NextSiblings(n.Handle, 1) {
		if sib.Tag == "input" || sib.Tag == "textarea" {
			return sib
		}
	}
	return nil
}

func keywordIn(text string, keywords []string) bool {
	for _, kw := range keywords {
		if containsFold(text, kw) {
			return true
		}
	}
	return false
}
