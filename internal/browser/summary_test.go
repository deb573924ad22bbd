package browser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildSummary_SkipsHiddenMachinery(t *testing.T) {
	page := `<html><head><title>ignored</title><style>body { color: red; }</style></head>
	<body><script>var secret = 1;</script><h1>Welcome</h1><p>Hello world</p></body></html>`

	got := buildSummary(page, 0)

	assert.Contains(t, got, "Welcome")
	assert.Contains(t, got, "Hello world")
	assert.NotContains(t, got, "secret")
	assert.NotContains(t, got, "color: red")
	assert.NotContains(t, got, "ignored")
}

func TestBuildSummary_CollapsesWhitespace(t *testing.T) {
	page := "<body><p>  one \n\t two  </p></body>"

	assert.Equal(t, "one two", buildSummary(page, 0))
}

func TestBuildSummary_KeepsBlockStructure(t *testing.T) {
	page := "<body><h1>Title</h1><p>First</p><p>Second</p></body>"

	assert.Equal(t, "Title\nFirst\nSecond", buildSummary(page, 0))
}

func TestBuildSummary_CapsLength(t *testing.T) {
	page := "<body><p>" + strings.Repeat("word ", 500) + "</p></body>"

	got := buildSummary(page, 40)

	assert.LessOrEqual(t, utf8.RuneCountInString(got), 40)
	assert.True(t, strings.HasPrefix(got, "word word"))
}

func TestBuildSummary_MalformedHTML(t *testing.T) {
	// The parser is lenient; even fragment soup should produce text, not errors.
	got := buildSummary("<div><p>dangling<span>text", 0)

	assert.Contains(t, got, "dangling")
	assert.Contains(t, got, "text")
}
