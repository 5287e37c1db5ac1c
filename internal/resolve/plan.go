package resolve

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/formsmith/api/schemas"
)

// Literal defaults for blank account fields.
const (
	DefaultCountry  = "France"
	DefaultCity     = "Paris"
	DefaultPostal   = "75001"
	DefaultUKCity   = "London"
	DefaultUKPostal = "SW1A 1AA"
	DefaultAddress  = "123 Main Street"
	DefaultMobile   = "123456789"
	DefaultLastName = "Smith"
	DefaultGender   = "Male"
	// acceptTarget is nominal: the terms control is clicked, not written.
	acceptTarget = "checked"
)

// Plan is the set of field requests for one account, in resolution order.
type Plan struct {
	Country  string
	UK       bool
	Division DivisionSpec
	Requests []schemas.FieldRequest
}

// NewPlan fills blanks with defaults and builds one request per intent. Countries without
// a division field get no adminDivision request.
func NewPlan(acct schemas.Account) (*Plan, error) {
	country := orDefault(acct.Country, DefaultCountry)
	p := &Plan{
		Country:  country,
		UK:       IsUK(country),
		Division: LookupDivision(country),
	}
	city, postal := DefaultCity, DefaultPostal
	if p.UK {
		city, postal = DefaultUKCity, DefaultUKPostal
	}

	type spec struct {
		intent  schemas.FieldIntent
		value   string
		pref    schemas.Preference
		exclude bool
		labels  []string
	}
	specs := []spec{
		{schemas.IntentLastName, orDefault(acct.LastName, DefaultLastName), schemas.PreferAny, true, LastNameLabels},
		{schemas.IntentMobile, orDefault(acct.Mobile, DefaultMobile), schemas.PreferAny, true, MobileLabels},
		{schemas.IntentGender, orDefault(acct.Gender, DefaultGender), schemas.PreferAny, false, GenderLabels},
		{schemas.IntentCity, orDefault(acct.City, city), schemas.PreferCityish, true, CityLabels},
		{schemas.IntentPostalCode, orDefault(acct.ZipCode, postal), schemas.PreferZipish, true, PostalLabels},
		{schemas.IntentAddress, orDefault(acct.Address, DefaultAddress), schemas.PreferAny, false, AddressLabels},
		{schemas.IntentCountry, country, schemas.PreferAny, false, CountryLabels},
	}
	if p.Division.Required() {
		specs = append(specs, spec{
			schemas.IntentAdminDivision, orDefault(acct.State, p.Division.Default), schemas.PreferAny, false,
			DivisionLabels(p.Division.Kind),
		})
	}
	specs = append(specs, spec{schemas.IntentAcceptTerms, acceptTarget, schemas.PreferAny, false, []string{AcceptTermsLabel}})

	for _, s := range specs {
		req, err := schemas.NewFieldRequest(s.intent, s.value, s.pref, s.exclude, s.labels...)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s request: %w", s.intent, err)
		}
		req.Country = country
		p.Requests = append(p.Requests, req)
	}
	return p, nil
}

// Request returns the request for intent, if the plan has one.
func (p *Plan) Request(intent schemas.FieldIntent) (schemas.FieldRequest, bool) {
	for _, r := range p.Requests {
		if r.Intent == intent {
			return r, true
		}
	}
	return schemas.FieldRequest{}, false
}

// DivisionLabels are the label phrasings for a division kind.
func DivisionLabels(kind DivisionKind) []string {
	if kind == DivisionNone {
		return nil
	}
	return []string{`^` + string(kind) + `\b`, `\b` + string(kind) + `\b`}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
