package resolve

import (
	"context"
	"strings"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
)

// nonDivisionSelect marks selects that are never a division picker.
var nonDivisionSelect = []string{"country", "mobile", "phone"}

// nonCountrySelect marks dial-code pickers that list countries too.
var nonCountrySelect = []string{"phone", "mobile", "dial"}

// IsPlaceholderText reports an option or value that stands for "nothing chosen yet".
func IsPlaceholderText(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "please ")
	return s == "" || s == "--" || strings.HasPrefix(s, "select") || strings.HasPrefix(s, "choose")
}

// chooseOption picks the option for target: an exact text or value match first, then a
// substring match in either direction. Placeholder and disabled options never match.
func chooseOption(options []document.Option, target string) (int, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return 0, false
	}
	usable := func(o document.Option) bool {
		return !o.Disabled && !IsPlaceholderText(o.Text) && !IsPlaceholderText(o.Value)
	}
	for i, o := range options {
		if usable(o) && (strings.EqualFold(strings.TrimSpace(o.Text), target) || strings.EqualFold(strings.TrimSpace(o.Value), target)) {
			return i, true
		}
	}
	lt := strings.ToLower(target)
	for i, o := range options {
		if !usable(o) {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(o.Text))
		value := strings.ToLower(strings.TrimSpace(o.Value))
		if symmetricContains(text, lt) || symmetricContains(value, lt) {
			return i, true
		}
	}
	return 0, false
}

func symmetricContains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// selectOption picks the option matching target on select n and verifies the selection.
func (e *Engine) selectOption(ctx context.Context, n *document.Node, target string) (*schemas.ElementDescriptor, error) {
	idx, ok := chooseOption(n.Options, target)
	if !ok {
		return nil, ErrNoOption
	}
	if err := e.writer.Select(ctx, n.Handle, idx, n.Options[idx].Value); err != nil {
		return nil, err
	}
	d := document.Describe(n)
	return &d, nil
}

// keywordSelect tries every writable select whose name or id contains keyword.
func (e *Engine) keywordSelect(keyword string) StepFunc {
	return func(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
		return e.trySelects(ctx, req, func(n *document.Node) bool {
			if !selectNamed(n, keyword) {
				return false
			}
			return keyword != "country" || !selectNamed(n, nonCountrySelect...)
		})
	}
}

// kindSelect targets selects named after the country's division kind.
func (e *Engine) kindSelect(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	spec := LookupDivision(req.Country)
	if !spec.Required() {
		return nil, ErrNonMatch
	}
	return e.trySelects(ctx, req, func(n *document.Node) bool {
		return selectNamed(n, string(spec.Kind))
	})
}

// selectScan tries every select that is not a country or phone picker.
func (e *Engine) selectScan(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	return e.trySelects(ctx, req, func(n *document.Node) bool {
		return !selectNamed(n, nonDivisionSelect...)
	})
}

// divisionNotRequired succeeds without touching the document when the country has no
// division field.
func divisionNotRequired(_ context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	if LookupDivision(req.Country).Required() {
		return nil, ErrNonMatch
	}
	return nil, nil
}

func (e *Engine) trySelects(ctx context.Context, req schemas.FieldRequest, accept func(*document.Node) bool) (*schemas.ElementDescriptor, error) {
	snap, err := e.doc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	lastErr := ErrNonMatch
	for _, n := range snap.Elements("select") {
		if !writableSelect(n) || !accept(n) {
			continue
		}
		desc, err := e.selectOption(ctx, n, req.TargetValue)
		if err == nil {
			return desc, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func selectNamed(n *document.Node, keywords ...string) bool {
	name, id := n.Attr("name"), n.Attr("id")
	for _, kw := range keywords {
		if containsFold(name, kw) || containsFold(id, kw) {
			return true
		}
	}
	return false
}
