package qualify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPrompts(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)
	assert.Contains(t, p.Wholesale.System, "VERDICT")
	assert.Contains(t, p.ProductFit.System, "PRODUCT_CATEGORIES")

	out, err := p.ProductFit.render(promptData{Company: "Company: Acme", Keywords: "golf, tennis"})
	require.NoError(t, err)
	assert.Contains(t, out, "Company: Acme")
	assert.Contains(t, out, "Target keywords: golf, tennis")
	assert.NotContains(t, out, "About our company")

	out, err = p.ProductFit.render(promptData{Company: "x", Keywords: "y", OurCompany: "We make golf tees."})
	require.NoError(t, err)
	assert.Contains(t, out, "About our company:\nWe make golf tees.")
}

func TestLoadPrompts_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`prompts:
  wholesale:
    system: sys-w
    user: "W {{.Company}}"
  product_fit:
    system: sys-p
    user: "P {{.Company}} {{.Keywords}}"
`), 0o644))

	p, err := LoadPrompts(path)
	require.NoError(t, err)
	out, err := p.Wholesale.render(promptData{Company: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "W Acme", out)
}

func TestLoadPrompts_EmptyPathUsesDefaults(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Wholesale.User)
}

func TestLoadPrompts_MissingFile(t *testing.T) {
	_, err := LoadPrompts(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParsePrompts_Errors(t *testing.T) {
	_, err := ParsePrompts([]byte("prompts: ["))
	assert.Error(t, err)

	_, err = ParsePrompts([]byte("prompts:\n  wholesale:\n    system: s\n    user: u\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product_fit")

	_, err = ParsePrompts([]byte("prompts:\n  wholesale:\n    system: s\n    user: \"{{.Company\"\n  product_fit:\n    system: s\n    user: u\n"))
	assert.Error(t, err)
}

func TestRender_UnknownFieldFails(t *testing.T) {
	p, err := ParsePrompts([]byte("prompts:\n  wholesale:\n    system: s\n    user: \"{{.Nope}}\"\n  product_fit:\n    system: s\n    user: u\n"))
	require.NoError(t, err)
	_, err = p.Wholesale.render(promptData{})
	assert.Error(t, err)
}
