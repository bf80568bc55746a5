package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiteralWithEscapedDollar(t *testing.T) {
	segs, err := Parse("price: $$5 for ${p:item}", Regular)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, SegRaw, segs[0].Kind)
	assert.Equal(t, "price: $5 for ", segs[0].Text)
	assert.Equal(t, SegProv, segs[1].Kind)
	assert.Equal(t, "item", segs[1].Text)
}

func TestParseRejectsTagNotAllowedInKind(t *testing.T) {
	_, err := Parse("${p:item}", VarsOnly)
	assert.Error(t, err)

	_, err = Parse("${v:x}", EnvsOnly)
	assert.Error(t, err)

	_, err = Parse("${e:HOME}", Regular)
	assert.Error(t, err)
}

func TestParseRejectsEmptyTemplateBlock(t *testing.T) {
	_, err := Parse("${p:}", Regular)
	assert.Error(t, err)
}

func TestParseRejectsUnterminatedBlock(t *testing.T) {
	_, err := Parse("${p:item", Regular)
	assert.Error(t, err)
}

func TestParseRejectsNestedExprInsideExpr(t *testing.T) {
	_, err := Parse("${x:${x:1}}", Regular)
	assert.Error(t, err)
}

func TestParseRejectsComplexPrimitive(t *testing.T) {
	_, err := Parse("${p:${x:1}}", Regular)
	assert.Error(t, err)
}

func TestParseAllowsExprContainingProvAndVar(t *testing.T) {
	segs, err := Parse("${x:${p:a} + ${v:b}}", Regular)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, SegExpr, segs[0].Kind)
	require.Len(t, segs[0].Expr, 3)
	assert.Equal(t, SegProv, segs[0].Expr[0].Kind)
	assert.Equal(t, SegRaw, segs[0].Expr[1].Kind)
	assert.Equal(t, SegVar, segs[0].Expr[2].Kind)
}

func TestRenderRoundTripsEscaping(t *testing.T) {
	segs, err := Parse("a$$b${p:x}", Regular)
	require.NoError(t, err)
	assert.Equal(t, "a$$b${p:x}", Render(segs))
}

func TestIsLiteralTrueForPlainText(t *testing.T) {
	segs, err := Parse("just text", Regular)
	require.NoError(t, err)
	lit, ok := IsLiteral(segs)
	assert.True(t, ok)
	assert.Equal(t, "just text", lit)
}

func TestIsLiteralFalseWhenProviderPresent(t *testing.T) {
	segs, err := Parse("x ${p:y}", Regular)
	require.NoError(t, err)
	_, ok := IsLiteral(segs)
	assert.False(t, ok)
}

func TestRequiredProvidersCollectsUniqueNamesAcrossExpr(t *testing.T) {
	segs, err := Parse("${p:a}-${p:b}-${p:a}-${x:${p:c}}", Regular)
	require.NoError(t, err)
	got := RequiredProviders(segs)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestRequiredProvidersEmptyWhenNone(t *testing.T) {
	segs, err := Parse("no providers here", Regular)
	require.NoError(t, err)
	assert.Empty(t, RequiredProviders(segs))
}
