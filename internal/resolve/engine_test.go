package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document"
	"github.com/xkilldash9x/formsmith/internal/document/htmldoc"
)

func testResolverConfig(s config.Strictness) config.ResolverConfig {
	return config.ResolverConfig{
		Strictness:          s,
		LabelTimeout:        50 * time.Millisecond,
		OperationTimeout:    time.Second,
		RowTolerancePx:      6,
		PreferenceBonus:     6,
		AbovePenalty:        6,
		LeftPenalty:         1,
		SiblingProbeLimit:   3,
		VerticalTolerancePx: 40,
		NearestLeftPenalty:  50,
		HorizontalWeight:    0.02,
	}
}

type spy struct{ entered []schemas.Strategy }

func (s *spy) observe(_ schemas.FieldIntent, strategy schemas.Strategy) {
	s.entered = append(s.entered, strategy)
}

func newEngine(t *testing.T, src string, s config.Strictness, opts ...htmldoc.Option) (*Engine, *htmldoc.Document, *spy) {
	t.Helper()
	doc, err := htmldoc.ParseString(src, opts...)
	require.NoError(t, err)
	sp := &spy{}
	return New(doc, testResolverConfig(s), zaptest.NewLogger(t), WithObserver(sp.observe)), doc, sp
}

func request(t *testing.T, intent schemas.FieldIntent, value string, pref schemas.Preference, exclude bool, patterns ...string) schemas.FieldRequest {
	t.Helper()
	req, err := schemas.NewFieldRequest(intent, value, pref, exclude, patterns...)
	require.NoError(t, err)
	return req
}

func handle(t *testing.T, doc *htmldoc.Document, id string) document.Handle {
	t.Helper()
	h, ok := doc.HandleByID(id)
	require.True(t, ok, "no element with id %q", id)
	return h
}

func value(t *testing.T, doc *htmldoc.Document, id string) string {
	t.Helper()
	v, err := doc.Value(context.Background(), handle(t, doc, id))
	require.NoError(t, err)
	return v
}

func TestResolve_AccessibleLabelShortCircuits(t *testing.T) {
	const form = `<form>
  <label for="city">City</label><input id="city" name="c1">
  <input id="other" placeholder="City">
</form>`
	e, doc, sp := newEngine(t, form, config.StrictnessBalanced)

	res := e.Resolve(context.Background(), request(t, schemas.IntentCity, "Paris", schemas.PreferCityish, true, CityLabels...))

	require.True(t, res.Matched)
	assert.Equal(t, schemas.StrategyAccessibleLabel, res.Strategy)
	assert.Equal(t, []schemas.Strategy{schemas.StrategyAccessibleLabel}, sp.entered)
	assert.Equal(t, "Paris", value(t, doc, "city"))
	assert.Empty(t, value(t, doc, "other"))
	assert.Equal(t, []document.EventKind{document.EventInput, document.EventChange}, doc.Events(handle(t, doc, "city")))
	require.NotNil(t, res.Element)
	assert.Equal(t, "c1", res.Element.Name)
}

func TestResolve_VerificationFailureFallsThrough(t *testing.T) {
	const form = `<form>
  <input id="masked" aria-label="City">
  <input id="plain" placeholder="City">
</form>`
	var masked document.Handle
	e, doc, sp := newEngine(t, form, config.StrictnessBalanced, htmldoc.WithValueFilter(func(h document.Handle, v string) string {
		if h == masked {
			return ""
		}
		return v
	}))
	masked = handle(t, doc, "masked")

	res := e.Resolve(context.Background(), request(t, schemas.IntentCity, "Paris", schemas.PreferCityish, true, CityLabels...))

	require.True(t, res.Matched)
	assert.Equal(t, schemas.StrategySelectorProbe, res.Strategy)
	assert.Equal(t, "Paris", value(t, doc, "plain"))
	assert.Equal(t, []schemas.Strategy{
		schemas.StrategyAccessibleLabel, schemas.StrategyGroupRow, schemas.StrategyNearestLabel, schemas.StrategySelectorProbe,
	}, sp.entered)
}

func TestResolve_FrenchLabels(t *testing.T) {
	const form = `<form>
  <div><span>Ville</span><input id="ville" placeholder="Ville"></div>
  <div><span>Code postal</span><input id="cp" placeholder="Code postal" maxlength="5"></div>
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessBalanced)
	ctx := context.Background()

	city := e.Resolve(ctx, request(t, schemas.IntentCity, "Paris", schemas.PreferCityish, true, CityLabels...))
	postal := e.Resolve(ctx, request(t, schemas.IntentPostalCode, "75001", schemas.PreferZipish, true, PostalLabels...))

	require.True(t, city.Matched)
	assert.Equal(t, schemas.StrategyPositionalScan, city.Strategy)
	require.True(t, postal.Matched)
	assert.Equal(t, schemas.StrategySelectorProbe, postal.Strategy)
	assert.Equal(t, "Paris", value(t, doc, "ville"))
	assert.Equal(t, "75001", value(t, doc, "cp"))
}

func TestResolve_LocalizedLabelIsNoMatchForCity(t *testing.T) {
	const form = `<form>
  <label>Ville</label><input id="v">
  <div class="row"><input id="cp" placeholder="Code postal"></div>
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessBalanced)
	ctx := context.Background()

	city := e.Resolve(ctx, request(t, schemas.IntentCity, "Paris", schemas.PreferCityish, true, CityLabels...))
	postal := e.Resolve(ctx, request(t, schemas.IntentPostalCode, "75001", schemas.PreferZipish, true, PostalLabels...))

	assert.Equal(t, schemas.NoMatch(), city)
	assert.Empty(t, value(t, doc, "v"))
	require.True(t, postal.Matched)
	assert.Equal(t, schemas.StrategySelectorProbe, postal.Strategy)
	assert.Equal(t, "75001", value(t, doc, "cp"))
}

func TestResolve_UnmappedCountryNeedsNoDivision(t *testing.T) {
	const form = `<form>
  <select id="state" name="state"><option>--</option><option>California</option></select>
</form>`
	for _, country := range []string{"Atlantis", "Canada"} {
		t.Run(country, func(t *testing.T) {
			e, doc, sp := newEngine(t, form, config.StrictnessBalanced)
			req := request(t, schemas.IntentAdminDivision, "Somewhere", schemas.PreferAny, false)
			req.Country = country

			res := e.Resolve(context.Background(), req)

			assert.Equal(t, schemas.Matched(schemas.StrategyNotRequired, nil), res)
			assert.Equal(t, []schemas.Strategy{schemas.StrategyNotRequired}, sp.entered)
			assert.Empty(t, doc.Events(handle(t, doc, "state")))
			assert.Equal(t, "--", value(t, doc, "state"))
		})
	}
}

func TestResolve_DivisionSelect(t *testing.T) {
	const form = `<form>
  <select id="dial" name="phone_country"><option value="+1">United States +1</option></select>
  <select id="state" name="billing_state">
    <option>--</option>
    <option value="CA">California</option>
    <option value="TX">Texas</option>
  </select>
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessBalanced)
	req := request(t, schemas.IntentAdminDivision, "California", schemas.PreferAny, false, DivisionLabels(DivisionState)...)
	req.Country = "United States"

	res := e.Resolve(context.Background(), req)

	require.True(t, res.Matched)
	assert.Equal(t, schemas.StrategyKindSelect, res.Strategy)
	assert.Equal(t, "CA", value(t, doc, "state"))
	assert.Equal(t, []document.EventKind{document.EventInput, document.EventChange}, doc.Events(handle(t, doc, "state")))
	assert.Empty(t, doc.Events(handle(t, doc, "dial")))
}

func TestRepair_DivisionSelectScan(t *testing.T) {
	const form = `<form>
  <select id="country" name="country"><option>Spain</option><option>Madrid</option></select>
  <select id="area" name="area">
    <option value="">Please select</option>
    <option value="m">Comunidad de Madrid</option>
  </select>
</form>`
	e, doc, sp := newEngine(t, form, config.StrictnessBalanced)
	req := request(t, schemas.IntentAdminDivision, "Madrid", schemas.PreferAny, false, DivisionLabels(DivisionProvince)...)
	req.Country = "Spain"

	res := e.Repair(context.Background(), req)

	require.True(t, res.Matched)
	assert.Equal(t, schemas.StrategySelectScan, res.Strategy)
	assert.Equal(t, "m", value(t, doc, "area"))
	assert.Equal(t, "Spain", value(t, doc, "country"))
	assert.NotContains(t, sp.entered, schemas.StrategyAccessibleLabel)
}

func TestResolve_CountrySkipsDialCodeSelect(t *testing.T) {
	const form = `<form>
  <select id="dial" name="mobile_country"><option value="+33">France (+33)</option></select>
  <select id="country" name="country_code"><option value="">Choose</option><option value="FR">France</option></select>
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessBalanced)

	res := e.Resolve(context.Background(), request(t, schemas.IntentCountry, "France", schemas.PreferAny, false, CountryLabels...))

	require.True(t, res.Matched)
	assert.Equal(t, schemas.StrategyOptionMatch, res.Strategy)
	assert.Equal(t, "FR", value(t, doc, "country"))
	assert.Empty(t, doc.Events(handle(t, doc, "dial")))
}

func TestResolve_MobileSkipsDialCode(t *testing.T) {
	const form = `<form>
  <input id="dial" name="mobile_prefix" value="+33">
  <input id="mobile" name="mobile_number">
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessBalanced)

	res := e.Resolve(context.Background(), request(t, schemas.IntentMobile, "123456789", schemas.PreferAny, true, MobileLabels...))

	require.True(t, res.Matched)
	assert.Equal(t, "+33", value(t, doc, "dial"))
	assert.Equal(t, "123456789", value(t, doc, "mobile"))
}

func TestResolve_AcceptTerms(t *testing.T) {
	const form = `<form>
  <div><input type="checkbox" id="news"> Send me news</div>
  <div><input type="checkbox" id="terms"><label for="terms">I accept the terms</label></div>
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessBalanced)
	req := request(t, schemas.IntentAcceptTerms, acceptTarget, schemas.PreferAny, false, AcceptTermsLabel)

	res := e.Resolve(context.Background(), req)
	require.True(t, res.Matched)
	assert.Equal(t, schemas.StrategyToggle, res.Strategy)
	assert.Equal(t, 1, doc.Clicks(handle(t, doc, "terms")))
	assert.Zero(t, doc.Clicks(handle(t, doc, "news")))

	res = e.Resolve(context.Background(), req)
	require.True(t, res.Matched)
	assert.Equal(t, 1, doc.Clicks(handle(t, doc, "terms")), "checked box must not be clicked again")
}

func TestChainFor_Strictness(t *testing.T) {
	strict, _, _ := newEngine(t, `<form></form>`, config.StrictnessStrict)
	balanced, _, _ := newEngine(t, `<form></form>`, config.StrictnessBalanced)

	assert.NotContains(t, strict.ChainFor(schemas.IntentPostalCode).Strategies(), schemas.StrategyPositionalScan)
	assert.Contains(t, balanced.ChainFor(schemas.IntentPostalCode).Strategies(), schemas.StrategyPositionalScan)
	assert.Equal(t, []schemas.Strategy{
		schemas.StrategySelectorProbe, schemas.StrategyPositionalScan, schemas.StrategyDocumentWrite,
	}, balanced.AggressiveFor(schemas.IntentCity).Strategies())
}

func TestDocumentWrite_PositionalFallback(t *testing.T) {
	const form = `<form>
  <input id="first" maxlength="8">
  <input id="second" maxlength="8">
</form>`
	req := request(t, schemas.IntentPostalCode, "75001", schemas.PreferZipish, true, PostalLabels...)

	balanced, doc, _ := newEngine(t, form, config.StrictnessBalanced)
	_, err := balanced.documentWrite(postalProfile)(context.Background(), req)
	assert.ErrorIs(t, err, ErrNonMatch)
	assert.Empty(t, value(t, doc, "second"))

	aggressive, doc, _ := newEngine(t, form, config.StrictnessAggressive)
	_, err = aggressive.documentWrite(postalProfile)(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, value(t, doc, "first"))
	assert.Equal(t, "75001", value(t, doc, "second"))
}

func TestDocumentWrite_FallbackCountsTextInputsOnly(t *testing.T) {
	const form = `<form>
  <input type="hidden" name="csrf" value="">
  <input type="checkbox" id="news">
  <input id="first" maxlength="8">
  <input id="second" maxlength="8">
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessAggressive)

	_, err := e.documentWrite(postalProfile)(context.Background(), request(t, schemas.IntentPostalCode, "75001", schemas.PreferZipish, true, PostalLabels...))
	require.NoError(t, err)
	assert.Empty(t, value(t, doc, "first"))
	assert.Equal(t, "75001", value(t, doc, "second"))
}

func TestDocumentWrite_LabelAssociation(t *testing.T) {
	const form = `<form>
  <label>Town</label><input id="t1" name="f1">
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessStrict)

	desc, err := e.documentWrite(cityProfile)(context.Background(), request(t, schemas.IntentCity, "Paris", schemas.PreferCityish, true))
	require.NoError(t, err)
	assert.Equal(t, "f1", desc.Name)
	assert.Equal(t, "Paris", value(t, doc, "t1"))
}

func TestClearPostcode(t *testing.T) {
	const form = `<form>
  <input id="line1" name="address" value="1 High Street">
  <input id="pc" name="postcode" value="EC1A 1BB">
</form>`
	e, doc, _ := newEngine(t, form, config.StrictnessBalanced)

	require.NoError(t, e.ClearPostcode(context.Background()))
	assert.Empty(t, value(t, doc, "pc"))
	assert.Equal(t, "1 High Street", value(t, doc, "line1"))
}
