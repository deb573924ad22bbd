package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func testElementTable() map[string]schemas.ElementDescriptor {
	return map[string]schemas.ElementDescriptor{
		"e1": {ID: "e1", Tag: "button", Locator: "#submit", Text: "Submit", Visible: true},
		"e2": {ID: "e2", Tag: "input", Locator: "input[name=\"q\"]", Name: "q", Type: "search", Visible: true},
	}
}

func TestParser_ValidDecision(t *testing.T) {
	p := NewParser(NewRegistry())

	raw := &schemas.RawDecision{
		Kind:      "click",
		ElementID: " e1 ",
		Reasoning: "  The submit button is the obvious next step.\n",
	}
	action, err := p.Parse(raw, testElementTable())

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, action.Kind)
	assert.Equal(t, "e1", action.ElementID)
	require.NotNil(t, action.Element)
	assert.Equal(t, "#submit", action.Element.Locator)
	// Reasoning is audit data and passes through untouched.
	assert.Equal(t, "  The submit button is the obvious next step.\n", action.Reasoning)
}

func TestParser_NormalizesKindSpelling(t *testing.T) {
	p := NewParser(NewRegistry())
	table := testElementTable()

	for _, spelling := range []string{"Input_Text", "input-text", " INPUT TEXT "} {
		raw := &schemas.RawDecision{Kind: spelling, ElementID: "e2", Params: map[string]interface{}{"text": "golang"}}
		action, err := p.Parse(raw, table)
		require.NoError(t, err, "spelling %q", spelling)
		assert.Equal(t, schemas.ActionInputText, action.Kind)
	}
}

func TestParser_RejectsUnknownKind(t *testing.T) {
	p := NewParser(NewRegistry())

	action, err := p.Parse(&schemas.RawDecision{Kind: "teleport"}, testElementTable())

	assert.Nil(t, action)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "action", verr.Field)
	assert.Contains(t, verr.Message, "teleport")
}

func TestParser_RejectsNilDecision(t *testing.T) {
	p := NewParser(NewRegistry())

	action, err := p.Parse(nil, testElementTable())

	assert.Nil(t, action)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParser_RejectsMissingElementReference(t *testing.T) {
	p := NewParser(NewRegistry())

	action, err := p.Parse(&schemas.RawDecision{Kind: "click"}, testElementTable())

	assert.Nil(t, action)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "element", verr.Field)
}

// An element ID minted for an earlier observation must not pass validation
// against the current table.
func TestParser_RejectsStaleElementReference(t *testing.T) {
	p := NewParser(NewRegistry())

	action, err := p.Parse(&schemas.RawDecision{Kind: "click", ElementID: "e9"}, testElementTable())

	assert.Nil(t, action)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "not on the current page")
	assert.Contains(t, verr.Message, "2 elements visible")
}

// Kinds that do not require an element still bind one when the model names
// it, so hover-like refinements stay possible.
func TestParser_BindsOptionalElementReference(t *testing.T) {
	p := NewParser(NewRegistry())

	action, err := p.Parse(&schemas.RawDecision{Kind: "pointer_click", ElementID: "e1"}, testElementTable())

	require.NoError(t, err)
	require.NotNil(t, action.Element)
	assert.Equal(t, "#submit", action.Element.Locator)
}

func TestParser_CarriesPayloadAndOutputHints(t *testing.T) {
	p := NewParser(NewRegistry())

	raw := &schemas.RawDecision{
		Kind:         "extract",
		Payload:      map[string]interface{}{"sku": "X-100"},
		OutputFormat: "markdown",
		OutputTitle:  "Product details",
	}
	action, err := p.Parse(raw, nil)

	require.NoError(t, err)
	assert.Equal(t, "X-100", action.Payload["sku"])
	assert.Equal(t, "markdown", action.OutputFormat)
	assert.Equal(t, "Product details", action.OutputTitle)
}
