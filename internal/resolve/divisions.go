package resolve

import (
	"sort"

	"github.com/xkilldash9x/formsmith/api/schemas"
)

// DivisionKind names a country's second-level address field.
type DivisionKind string

const (
	DivisionState      DivisionKind = "state"
	DivisionDepartment DivisionKind = "department"
	DivisionProvince   DivisionKind = "province"
	DivisionCanton     DivisionKind = "canton"
	DivisionRegion     DivisionKind = "region"
	DivisionNone       DivisionKind = "none"
)

// DivisionSpec is the division field a country's form is expected to carry.
type DivisionSpec struct {
	Kind    DivisionKind `json:"kind"`
	Default string       `json:"default,omitempty"`
}

// Required reports whether a division selector must be filled.
func (d DivisionSpec) Required() bool { return d.Kind != DivisionNone }

var divisionTable = map[string]DivisionSpec{
	"us":            {Kind: DivisionState, Default: "California"},
	"usa":           {Kind: DivisionState, Default: "California"},
	"united states": {Kind: DivisionState, Default: "California"},
	"france":        {Kind: DivisionDepartment, Default: "75"},
	"spain":         {Kind: DivisionProvince, Default: "Madrid"},
	"switzerland":   {Kind: DivisionCanton, Default: "Zurich"},
	"italy":         {Kind: DivisionRegion, Default: "Lazio"},
	"belgium":       {Kind: DivisionRegion, Default: "Brussels-Capital Region"},
}

// noDivisionCountries pass division validation even when no selector is present.
var noDivisionCountries = map[string]struct{}{
	"canada":         {},
	"germany":        {},
	"netherlands":    {},
	"united kingdom": {},
	"uk":             {},
	"great britain":  {},
	"england":        {},
	"portugal":       {},
}

var ukNames = map[string]struct{}{
	"united kingdom": {},
	"uk":             {},
	"great britain":  {},
	"england":        {},
}

// LookupDivision maps a country name onto its division kind and default. Unknown countries map to
// DivisionNone. The lookup is pure and case-insensitive.
func LookupDivision(country string) DivisionSpec {
	if spec, ok := divisionTable[schemas.NormalizeCountry(country)]; ok {
		return spec
	}
	return DivisionSpec{Kind: DivisionNone}
}

// DivisionNotRequired reports whether the validator may accept a form without a division
// selector for country.
func DivisionNotRequired(country string) bool {
	key := schemas.NormalizeCountry(country)
	if _, ok := noDivisionCountries[key]; ok {
		return true
	}
	return !LookupDivision(key).Required()
}

// IsUK reports whether country names the United Kingdom.
func IsUK(country string) bool {
	_, ok := ukNames[schemas.NormalizeCountry(country)]
	return ok
}

// DivisionEntry is one row of the division table.
type DivisionEntry struct {
	Country string `json:"country"`
	DivisionSpec
}

// DivisionTable returns the table sorted by country name.
func DivisionTable() []DivisionEntry {
	out := make([]DivisionEntry, 0, len(divisionTable))
	for country, spec := range divisionTable {
		out = append(out, DivisionEntry{Country: country, DivisionSpec: spec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}

// NoDivisionCountries returns the validator allowlist, sorted.
func NoDivisionCountries() []string {
	out := make([]string, 0, len(noDivisionCountries))
	for c := range noDivisionCountries {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
