package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

func TestTemplateLiteralNeedsNoResolution(t *testing.T) {
	tpl, err := Compile("hello world", Regular)
	require.NoError(t, err)

	err = tpl.ResolveVars(func(string) (jsonvalue.Value, error) { return jsonvalue.Null(), nil })
	require.NoError(t, err)

	lit, ok := tpl.IsLiteral()
	assert.True(t, ok)
	assert.Equal(t, "hello world", lit)

	out, err := tpl.Evaluate(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestTemplateVarSubstitutionReducesToLiteral(t *testing.T) {
	tpl, err := Compile("host-${v:region}", Regular)
	require.NoError(t, err)

	err = tpl.ResolveVars(func(path string) (jsonvalue.Value, error) {
		assert.Equal(t, "region", path)
		return jsonvalue.String("us-east"), nil
	})
	require.NoError(t, err)

	lit, ok := tpl.IsLiteral()
	assert.True(t, ok)
	assert.Equal(t, "host-us-east", lit)
}

func TestTemplateRequiredProvidersBeforeResolution(t *testing.T) {
	tpl, err := Compile("${p:a}/${p:b}", Regular)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, tpl.RequiredProviders())
}

func TestTemplateEvaluateWithProviderValues(t *testing.T) {
	tpl, err := Compile("id=${p:user_id}", Regular)
	require.NoError(t, err)

	err = tpl.ResolveVars(func(string) (jsonvalue.Value, error) {
		t.Fatal("no ${v:…} in this template")
		return jsonvalue.Value{}, nil
	})
	require.NoError(t, err)

	_, isLit := tpl.IsLiteral()
	assert.False(t, isLit)

	out, err := tpl.Evaluate(context.Background(), nil, map[string]jsonvalue.Value{
		"user_id": jsonvalue.Int(7),
	})
	require.NoError(t, err)
	assert.Equal(t, "id=7", out)
}

func TestTemplateEvaluateMissingProviderValueErrors(t *testing.T) {
	tpl, err := Compile("${p:missing}", Regular)
	require.NoError(t, err)
	require.NoError(t, tpl.ResolveVars(func(string) (jsonvalue.Value, error) { return jsonvalue.Null(), nil }))

	_, err = tpl.Evaluate(context.Background(), nil, map[string]jsonvalue.Value{})
	assert.Error(t, err)
}

func TestTemplateEvaluateWithExpression(t *testing.T) {
	rt := newTestRuntime(t, "")

	tpl, err := Compile("total=${x:____provider_values[\"count\"] * 2}", Regular)
	require.NoError(t, err)
	require.NoError(t, tpl.ResolveVars(func(string) (jsonvalue.Value, error) { return jsonvalue.Null(), nil }))

	out, err := tpl.Evaluate(context.Background(), rt, map[string]jsonvalue.Value{
		"count": jsonvalue.Int(21),
	})
	require.NoError(t, err)
	assert.Equal(t, "total=42", out)
}

func TestTemplateEvaluateBeforeResolveVarsErrors(t *testing.T) {
	tpl, err := Compile("${p:x}", Regular)
	require.NoError(t, err)
	_, err = tpl.Evaluate(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestTemplateResolveEnvProducesLiteral(t *testing.T) {
	tpl, err := Compile("${e:HOME}/data", EnvsOnly)
	require.NoError(t, err)

	out, err := tpl.ResolveEnv(func(name string) (string, error) {
		assert.Equal(t, "HOME", name)
		return "/root", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/root/data", out)

	lit, ok := tpl.IsLiteral()
	assert.True(t, ok)
	assert.Equal(t, "/root/data", lit)
}

func TestTemplateResolveEnvRejectsNonEnvsOnlyKind(t *testing.T) {
	tpl, err := Compile("plain", Regular)
	require.NoError(t, err)
	_, err = tpl.ResolveEnv(func(string) (string, error) { return "", nil })
	assert.Error(t, err)
}

func TestTemplateExprAcceptsVarResolvedToRawSource(t *testing.T) {
	tpl, err := Compile("${x:${v:a}}", Regular)
	require.NoError(t, err)
	err = tpl.ResolveVars(func(string) (jsonvalue.Value, error) { return jsonvalue.String("nope"), nil })
	// ${v:…} resolves to raw text before compileSegments runs, so this
	// actually succeeds — raw substituted text becomes literal JS source.
	require.NoError(t, err)
}
