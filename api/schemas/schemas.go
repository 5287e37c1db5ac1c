package schemas

import (
	"errors"
	"fmt"
	"strings"
)

// FieldIntent is the abstract purpose of a form field, independent of any concrete element.
type FieldIntent string

const (
	IntentCity          FieldIntent = "city"
	IntentPostalCode    FieldIntent = "postalCode"
	IntentAdminDivision FieldIntent = "adminDivision"
	IntentCountry       FieldIntent = "country"
	IntentAddress       FieldIntent = "address"
	IntentMobile        FieldIntent = "mobile"
	IntentLastName      FieldIntent = "lastName"
	IntentGender        FieldIntent = "gender"
	IntentAcceptTerms   FieldIntent = "acceptTerms"
)

// AllIntents lists every supported intent in resolution order.
var AllIntents = []FieldIntent{
	IntentLastName,
	IntentMobile,
	IntentGender,
	IntentCity,
	IntentPostalCode,
	IntentAddress,
	IntentCountry,
	IntentAdminDivision,
	IntentAcceptTerms,
}

// MandatoryIntents are the intents checked by the validator.
var MandatoryIntents = []FieldIntent{
	IntentCity,
	IntentPostalCode,
	IntentCountry,
	IntentAdminDivision,
}

// Preference is a semantic hint used to break ties between candidates in the same row.
type Preference string

const (
	PreferAny     Preference = "any"
	PreferCityish Preference = "cityish"
	PreferZipish  Preference = "zipish"
)

// ErrEmptyTarget is returned when a field request is built without a value to write.
var ErrEmptyTarget = errors.New("field request target value must not be empty")

// FieldRequest describes one attempt to resolve and fill a field. It is immutable once built.
type FieldRequest struct {
	Intent            FieldIntent `json:"intent"`
	LabelPatterns     []string    `json:"label_patterns"`
	TargetValue       string      `json:"target_value"`
	Preference        Preference  `json:"preference"`
	ExcludeAddressish bool        `json:"exclude_addressish"`
	// Country is the account country the request was built for. Division and postal
	// strategies depend on it.
	Country string `json:"country,omitempty"`
}

// NewFieldRequest builds a validated request. The pattern slice is copied.
func NewFieldRequest(intent FieldIntent, target string, pref Preference, excludeAddressish bool, patterns ...string) (FieldRequest, error) {
	req := FieldRequest{
		Intent:            intent,
		LabelPatterns:     append([]string(nil), patterns...),
		TargetValue:       target,
		Preference:        pref,
		ExcludeAddressish: excludeAddressish,
	}
	if req.Preference == "" {
		req.Preference = PreferAny
	}
	return req, req.Validate()
}

// Validate enforces the request invariants.
func (r FieldRequest) Validate() error {
	if r.Intent == "" {
		return errors.New("field request intent must be set")
	}
	if strings.TrimSpace(r.TargetValue) == "" {
		return fmt.Errorf("%s: %w", r.Intent, ErrEmptyTarget)
	}
	return nil
}

// Rect is an element's bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Top() float64     { return r.Y }
func (r Rect) Left() float64    { return r.X }
func (r Rect) Right() float64   { return r.X + r.Width }
func (r Rect) Bottom() float64  { return r.Y + r.Height }
func (r Rect) CenterY() float64 { return r.Y + r.Height/2 }

// ElementDescriptor is the derived, point-in-time view of one element.
type ElementDescriptor struct {
	Tag          string `json:"tag"`
	Type         string `json:"type,omitempty"`
	Name         string `json:"name,omitempty"`
	ID           string `json:"id,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"`
	AriaLabel    string `json:"aria_label,omitempty"`
	Autocomplete string `json:"autocomplete,omitempty"`
	// MaxLength is -1 when the attribute is absent or unparsable.
	MaxLength int    `json:"max_length"`
	Pattern   string `json:"pattern,omitempty"`
	Disabled  bool   `json:"disabled"`
	ReadOnly  bool   `json:"read_only"`
	Box       Rect   `json:"box"`
	Visible   bool   `json:"visible"`
}

// Hint is the lowercase concatenation of placeholder, name and id.
func (d ElementDescriptor) Hint() string {
	return strings.ToLower(d.Placeholder + " " + d.Name + " " + d.ID)
}

// Writable reports whether a resolver may treat the element as a match.
func (d ElementDescriptor) Writable() bool {
	return d.Visible && !d.Disabled && !d.ReadOnly
}

// String renders a compact selector-like description for logs.
func (d ElementDescriptor) String() string {
	var sb strings.Builder
	sb.WriteString(d.Tag)
	if d.ID != "" {
		sb.WriteString("#" + d.ID)
	}
	if d.Name != "" {
		fmt.Fprintf(&sb, "[name=%q]", d.Name)
	}
	if d.Placeholder != "" {
		fmt.Fprintf(&sb, "[placeholder=%q]", d.Placeholder)
	}
	return sb.String()
}
