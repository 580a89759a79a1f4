package config

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// MirrorKind identifies the family of upstream a mirror belongs to.
type MirrorKind int

const (
	MirrorRegistry MirrorKind = iota // A container image registry
	MirrorSource                     // A source hosting site (HTML, API, raw content)
)

func (k MirrorKind) String() string {
	switch k {
	case MirrorRegistry:
		return "registry"
	case MirrorSource:
		return "source"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Mirror is a single upstream exposed by the gateway. Its name is used as
// both the path prefix (/name) and the subdomain label (name.domain).
type Mirror struct {
	Kind     MirrorKind
	Name     string
	Upstream string
	// ThirdParty suppresses the implicit library/ namespace used by the
	// default registry.
	ThirdParty bool
}

// Prefix returns the path prefix the mirror is mounted under.
func (m Mirror) Prefix() string {
	return "/" + m.Name
}

// Agent routes clients identified by their User-Agent product name.
type Agent struct {
	Product string
	Kind    MirrorKind
	// Mirror names the registry to use; it is empty for source agents.
	Mirror string
}

// Table is the full set of mirrors and agent rules.
type Table struct {
	Mirrors []Mirror
	Agents  []Agent
}

// Registries returns the registry mirrors in declaration order.
func (t *Table) Registries() []Mirror {
	return t.ofKind(MirrorRegistry)
}

// Sources returns the source mirrors in declaration order.
func (t *Table) Sources() []Mirror {
	return t.ofKind(MirrorSource)
}

// Mirror returns the mirror with the given name.
func (t *Table) Mirror(name string) (Mirror, bool) {
	for i := range t.Mirrors {
		if t.Mirrors[i].Name == name {
			return t.Mirrors[i], true
		}
	}
	return Mirror{}, false
}

func (t *Table) ofKind(kind MirrorKind) []Mirror {
	var res []Mirror
	for i := range t.Mirrors {
		if t.Mirrors[i].Kind == kind {
			res = append(res, t.Mirrors[i])
		}
	}
	return res
}

// Parse reads a mirror table from the given reader.
func Parse(reader io.Reader) (*Table, error) {
	table := &Table{}
	names := make(map[string]bool)

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		directive, args, _ := strings.Cut(line, " ")
		fields := strings.Fields(args)

		switch strings.ToLower(directive) {
		case "registry", "source":
			mirror, err := parseMirror(strings.ToLower(directive), fields)
			if err != nil {
				return nil, err
			}
			if names[mirror.Name] {
				return nil, fmt.Errorf("duplicate mirror name: %s", mirror.Name)
			}
			names[mirror.Name] = true
			table.Mirrors = append(table.Mirrors, mirror)
		case "agent":
			agent, err := parseAgent(fields)
			if err != nil {
				return nil, err
			}
			table.Agents = append(table.Agents, agent)
		default:
			return nil, fmt.Errorf("invalid line: %s", line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i := range table.Agents {
		agent := table.Agents[i]
		if agent.Kind != MirrorRegistry {
			continue
		}
		if m, ok := table.Mirror(agent.Mirror); !ok || m.Kind != MirrorRegistry {
			return nil, fmt.Errorf("agent %s refers to unknown registry: %s", agent.Product, agent.Mirror)
		}
	}

	return table, nil
}

func parseMirror(directive string, fields []string) (Mirror, error) {
	if len(fields) < 2 {
		return Mirror{}, fmt.Errorf("%s requires a name and an upstream: %s", directive, strings.Join(fields, " "))
	}

	mirror := Mirror{
		Kind:     MirrorRegistry,
		Name:     fields[0],
		Upstream: strings.TrimSuffix(fields[1], "/"),
	}
	if directive == "source" {
		mirror.Kind = MirrorSource
	}

	if strings.ContainsAny(mirror.Name, "/ ") {
		return Mirror{}, fmt.Errorf("invalid mirror name: %s", mirror.Name)
	}

	if u, err := url.Parse(mirror.Upstream); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Mirror{}, fmt.Errorf("invalid upstream for %s: %s", mirror.Name, fields[1])
	}

	for _, option := range fields[2:] {
		switch strings.ToLower(option) {
		case "third-party":
			if mirror.Kind != MirrorRegistry {
				return Mirror{}, fmt.Errorf("third-party only applies to registries: %s", mirror.Name)
			}
			mirror.ThirdParty = true
		default:
			return Mirror{}, fmt.Errorf("invalid option for %s: %s", mirror.Name, option)
		}
	}

	return mirror, nil
}

func parseAgent(fields []string) (Agent, error) {
	if len(fields) < 2 {
		return Agent{}, fmt.Errorf("agent requires a product and a target: %s", strings.Join(fields, " "))
	}

	switch strings.ToLower(fields[1]) {
	case "registry":
		if len(fields) != 3 {
			return Agent{}, fmt.Errorf("registry agent requires a registry name: %s", strings.Join(fields, " "))
		}
		return Agent{Product: fields[0], Kind: MirrorRegistry, Mirror: fields[2]}, nil
	case "source":
		if len(fields) != 2 {
			return Agent{}, fmt.Errorf("invalid source agent: %s", strings.Join(fields, " "))
		}
		return Agent{Product: fields[0], Kind: MirrorSource}, nil
	default:
		return Agent{}, fmt.Errorf("invalid agent target: %s", fields[1])
	}
}
