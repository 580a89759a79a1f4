package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Parse_ReturnsEmptyTableForEmptyFile(t *testing.T) {
	table, err := Parse(bytes.NewBuffer([]byte("")))

	require.NoError(t, err)
	assert.Empty(t, table.Mirrors)
	assert.Empty(t, table.Agents)
}

func Test_Parse_IgnoresCommentsAndBlankLines(t *testing.T) {
	table, err := Parse(bytes.NewBuffer([]byte(`
# A comment

    # An indented comment
`)))

	require.NoError(t, err)
	assert.Empty(t, table.Mirrors)
}

func Test_Parse_ErrorsOnUnknownLine(t *testing.T) {
	_, err := Parse(bytes.NewBuffer([]byte("error please")))

	assert.ErrorContains(t, err, "invalid line")
}

func Test_Parse_ErrorsOnMirrorWithoutUpstream(t *testing.T) {
	_, err := Parse(bytes.NewBuffer([]byte("registry docker")))

	assert.ErrorContains(t, err, "requires a name and an upstream")
}

func Test_Parse_ErrorsOnInvalidUpstream(t *testing.T) {
	tests := []string{
		"registry docker registry-1.docker.io",
		"registry docker ftp://registry-1.docker.io",
		"source github https://",
	}

	for i := range tests {
		t.Run(tests[i], func(t *testing.T) {
			_, err := Parse(bytes.NewBuffer([]byte(tests[i])))
			assert.ErrorContains(t, err, "invalid upstream")
		})
	}
}

func Test_Parse_ErrorsOnDuplicateName(t *testing.T) {
	_, err := Parse(bytes.NewBuffer([]byte(`
registry docker https://registry-1.docker.io
source docker https://github.com
`)))

	assert.ErrorContains(t, err, "duplicate mirror name: docker")
}

func Test_Parse_ErrorsOnUnknownOption(t *testing.T) {
	_, err := Parse(bytes.NewBuffer([]byte("registry ghcr https://ghcr.io fourth-party")))

	assert.ErrorContains(t, err, "invalid option for ghcr: fourth-party")
}

func Test_Parse_ErrorsOnThirdPartySource(t *testing.T) {
	_, err := Parse(bytes.NewBuffer([]byte("source github https://github.com third-party")))

	assert.ErrorContains(t, err, "third-party only applies to registries")
}

func Test_Parse_ErrorsOnAgentForUnknownRegistry(t *testing.T) {
	_, err := Parse(bytes.NewBuffer([]byte(`
source github https://github.com
agent docker registry github
`)))

	assert.ErrorContains(t, err, "agent docker refers to unknown registry: github")
}

func Test_Parse_ErrorsOnInvalidAgentTarget(t *testing.T) {
	_, err := Parse(bytes.NewBuffer([]byte("agent curl somewhere")))

	assert.ErrorContains(t, err, "invalid agent target")
}

func Test_Parse_ParsesMirrorsAndAgents(t *testing.T) {
	table, err := Parse(bytes.NewBuffer([]byte(`
registry docker https://registry-1.docker.io/
registry ghcr https://ghcr.io third-party
source github https://github.com
agent docker registry docker
agent git source
`)))

	require.NoError(t, err)
	assert.Equal(t, []Mirror{
		{Kind: MirrorRegistry, Name: "docker", Upstream: "https://registry-1.docker.io"},
		{Kind: MirrorRegistry, Name: "ghcr", Upstream: "https://ghcr.io", ThirdParty: true},
		{Kind: MirrorSource, Name: "github", Upstream: "https://github.com"},
	}, table.Mirrors)
	assert.Equal(t, []Agent{
		{Product: "docker", Kind: MirrorRegistry, Mirror: "docker"},
		{Product: "git", Kind: MirrorSource},
	}, table.Agents)
}

func Test_Table_FiltersByKind(t *testing.T) {
	table := Defaults()

	for _, m := range table.Registries() {
		assert.Equal(t, MirrorRegistry, m.Kind)
	}
	for _, m := range table.Sources() {
		assert.Equal(t, MirrorSource, m.Kind)
	}
	assert.Equal(t, len(table.Mirrors), len(table.Registries())+len(table.Sources()))
}

func Test_Table_Mirror(t *testing.T) {
	table := Defaults()

	m, ok := table.Mirror("ghcr")
	assert.True(t, ok)
	assert.Equal(t, "https://ghcr.io", m.Upstream)
	assert.Equal(t, "/ghcr", m.Prefix())

	_, ok = table.Mirror("nope")
	assert.False(t, ok)
}

func Test_Defaults_OnlyDockerIsFirstParty(t *testing.T) {
	for _, m := range Defaults().Registries() {
		assert.Equal(t, m.Name != "docker", m.ThirdParty, m.Name)
	}
}
