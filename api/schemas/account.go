package schemas

import "strings"

// Account is the per-session profile data handed to the engine. Every field is optional.
type Account struct {
	Email    string `json:"email" yaml:"email"`
	Country  string `json:"country" yaml:"country"`
	City     string `json:"city" yaml:"city"`
	ZipCode  string `json:"zipCode" yaml:"zipCode"`
	State    string `json:"state" yaml:"state"`
	Address  string `json:"address" yaml:"address"`
	Mobile   string `json:"mobile" yaml:"mobile"`
	LastName string `json:"lastName" yaml:"lastName"`
	Gender   string `json:"gender" yaml:"gender"`
}

// NormalizeCountry lowercases and collapses whitespace so table lookups are stable.
func NormalizeCountry(country string) string {
	return strings.Join(strings.Fields(strings.ToLower(country)), " ")
}
