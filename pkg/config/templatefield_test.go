package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/grafana/pewpewgo/pkg/template"
)

func TestRegularTemplateDecodesRawAndKind(t *testing.T) {
	var rt RegularTemplate
	require.NoError(t, yaml.Unmarshal([]byte(`"${v:region}-x"`), &rt))
	assert.Equal(t, "${v:region}-x", rt.Raw())

	tpl, err := rt.Compile()
	require.NoError(t, err)
	assert.NotNil(t, tpl)
}

func TestVarsOnlyTemplateRejectsProviderTag(t *testing.T) {
	var vt VarsOnlyTemplate
	require.NoError(t, yaml.Unmarshal([]byte(`"${p:some_provider}"`), &vt))
	assert.Equal(t, template.VarsOnly, vt.kind)

	_, err := vt.Compile()
	assert.Error(t, err)
}

func TestLiteralHelpers(t *testing.T) {
	r := regularLiteral("abc")
	assert.Equal(t, "abc", r.Raw())
	assert.Equal(t, template.Regular, r.kind)

	v := varsOnlyLiteral("60s")
	assert.Equal(t, "60s", v.Raw())
	assert.Equal(t, template.VarsOnly, v.kind)
}
