// Package validate inspects a filled form and reports, per mandatory field, whether a
// plausible value is present. It only reads the document.
package validate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
	"github.com/xkilldash9x/formsmith/internal/resolve"
)

var (
	divisionNames = []string{"state", "province", "region", "department", "canton"}
	divisionIDs   = []string{"state", "province", "region"}
)

// Validator checks the mandatory fields of one session's document.
type Validator struct {
	doc    document.Adapter
	logger *zap.Logger
}

// New returns a validator over doc.
func New(doc document.Adapter, logger *zap.Logger) *Validator {
	return &Validator{doc: doc, logger: logger.Named("validator")}
}

// Validate takes one snapshot and evaluates every mandatory intent against it. country
// decides whether a missing division selector is acceptable.
func (v *Validator) Validate(ctx context.Context, country string) (schemas.ValidationReport, error) {
	snap, err := v.doc.Snapshot(ctx)
	if err != nil {
		return schemas.ValidationReport{}, fmt.Errorf("failed to snapshot document for validation: %w", err)
	}
	report := Check(snap, country)
	v.logger.Debug("Form validated.", zap.Bool("valid", report.Valid), zap.Any("fields", report.Fields))
	return report, nil
}

// Check evaluates a captured snapshot.
func Check(snap *document.Snapshot, country string) schemas.ValidationReport {
	fields := map[schemas.FieldIntent]bool{
		schemas.IntentCity:          anyFilled(snap.Elements("input", "textarea"), isCityField),
		schemas.IntentPostalCode:    anyFilled(snap.Elements("input", "textarea"), isPostalField),
		schemas.IntentCountry:       anyFilled(snap.Elements("select"), isCountryField),
		schemas.IntentAdminDivision: resolve.DivisionNotRequired(country) || anyFilled(snap.Elements("select"), isDivisionField),
	}
	valid := true
	for _, intent := range schemas.MandatoryIntents {
		valid = valid && fields[intent]
	}
	return schemas.ValidationReport{Fields: fields, Valid: valid}
}

func anyFilled(nodes []*document.Node, match func(*document.Node) bool) bool {
	for _, n := range nodes {
		if match(n) && plausible(n) {
			return true
		}
	}
	return false
}

// plausible rejects blanks and the values a control shows before anything is chosen.
func plausible(n *document.Node) bool {
	v := strings.TrimSpace(n.Value)
	if v == "" || resolve.IsPlaceholderText(v) {
		return false
	}
	if ph := strings.TrimSpace(n.Attr("placeholder")); ph != "" && strings.EqualFold(ph, v) {
		return false
	}
	if n.Tag == "select" && n.SelectedIndex >= 0 && n.SelectedIndex < len(n.Options) {
		return !resolve.IsPlaceholderText(n.Options[n.SelectedIndex].Text)
	}
	return true
}

func isCityField(n *document.Node) bool {
	return n.IsTextEntry() && attrHas(n, []string{"placeholder", "name", "id"}, "city")
}

func isPostalField(n *document.Node) bool {
	if !n.IsTextEntry() {
		return false
	}
	return attrHas(n, []string{"placeholder"}, "zip", "postal", "code") ||
		attrHas(n, []string{"name", "id"}, "zip", "postal")
}

func isCountryField(n *document.Node) bool {
	return attrHas(n, []string{"name", "id"}, "country") && !attrHas(n, []string{"name", "id"}, "phone", "mobile", "dial")
}

func isDivisionField(n *document.Node) bool {
	return attrHas(n, []string{"name"}, divisionNames...) || attrHas(n, []string{"id"}, divisionIDs...)
}

func attrHas(n *document.Node, attrs []string, keywords ...string) bool {
	for _, a := range attrs {
		v := strings.ToLower(n.Attr(a))
		if v == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(v, kw) {
				return true
			}
		}
	}
	return false
}
