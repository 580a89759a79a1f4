package config

import (
	"strings"
)

// DefaultTable is used when no mirror table is configured.
const DefaultTable = `
# Container registries
registry docker https://registry-1.docker.io
registry ghcr https://ghcr.io third-party
registry quay https://quay.io third-party
registry gcr https://gcr.io third-party
registry k8s https://registry.k8s.io third-party
registry k8s-gcr https://k8s.gcr.io third-party
registry cloudsmith https://docker.cloudsmith.io third-party

# Source hosting
source github https://github.com
source gh https://github.com
source gist https://gist.github.com
source github-api https://api.github.com
source gh-api https://api.github.com
source raw https://raw.githubusercontent.com

# Clients that don't know they're talking to a mirror
agent docker registry docker
agent git source
`

// Defaults returns the parsed DefaultTable.
func Defaults() *Table {
	table, err := Parse(strings.NewReader(DefaultTable))
	if err != nil {
		panic(err)
	}
	return table
}
