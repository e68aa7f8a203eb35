package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cutlet/internal/plugin/api"
)

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor([]byte(`
name: echo
version: 1.2.0
main: echo.main
description: Repeats things
website: https://example.org
author: ada
authors: [grace, ada]
depend: [storage, storage, net]
softdepend: [metrics, net]
modules: [storage]
`))
	require.NoError(t, err)

	assert.Equal(t, "echo", d.Name)
	assert.Equal(t, "echo.main", d.Main)
	assert.Equal(t, []string{"ada", "grace"}, d.Authors)
	assert.Equal(t, []string{"storage", "net"}, d.Depend)
	assert.Equal(t, []string{"metrics"}, d.SoftDepend)
	assert.Equal(t, []string{"storage", "net", "metrics"}, d.Dependencies())
	assert.Equal(t, []string{"storage"}, d.Modules)
	assert.True(t, d.IsHard("net"))
	assert.False(t, d.IsHard("metrics"))
	assert.Equal(t, "echo v1.2.0", d.String())
}

func TestParseDescriptorInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "main: x", "name is required"},
		{"missing main", "name: x", "main is required"},
		{"bad name", "name: 'has space'\nmain: x", "must match"},
		{"self dependency", "name: x\nmain: x\nsoftdepend: [x]", "depends on itself"},
		{"not yaml", "name: [", "invalid descriptor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseDescriptorReportsAllProblems(t *testing.T) {
	_, err := ParseDescriptor([]byte("version: 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "main is required")
}

func TestDescriptorClone(t *testing.T) {
	d := &Descriptor{Name: "a", Main: "a", Depend: []string{"b"}}
	c := d.Clone()
	c.Depend[0] = "z"
	assert.Equal(t, "b", d.Depend[0])
}

func TestDescriptorFile(t *testing.T) {
	assert.Equal(t, "module.yml", DescriptorFile(api.KindModule))
	assert.Equal(t, "bot.yml", DescriptorFile(api.KindBot))
}
