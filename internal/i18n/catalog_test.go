package i18n

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
no_permission = "You do not have permission"
greeting = "Hello, %s"

[console]
stopping = "Stopping"
`

func TestLoad(t *testing.T) {
	c, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "You do not have permission", c.Translate("no_permission"))
	assert.Equal(t, "Stopping", c.Translate("console.stopping"))
	assert.Equal(t, "Hello, bob", c.Translatef("greeting", "bob"))
	assert.Equal(t, []string{"console.stopping", "greeting", "no_permission"}, c.Keys())
}

func TestMissingKey(t *testing.T) {
	c := New(map[string]string{"a": "b"})
	assert.Equal(t, "No translation for key nope", c.Translate("nope"))
	assert.False(t, c.Has("nope"))
	assert.True(t, c.Has("a"))

	assert.Equal(t, "No translation for key x", c.Translatef("x", 3))
	assert.Equal(t, "No translation for key 100% done", c.Translatef("100% done"))

	var nilCatalog *Catalog
	assert.Equal(t, Missing("x"), nilCatalog.Translate("x"))
	assert.Equal(t, Missing("x"), nilCatalog.Translatef("x", "arg"))
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(strings.NewReader("= broken"))
	assert.Error(t, err)
}
