package registry

import (
	"regexp"
	"strings"
)

const defaultNamespace = "library/"

var repositoryPath = regexp.MustCompile(`^/v2/([^/]+)/([^/]+)/([^/]+)$`)

// CompleteScope adds the default namespace to a `repository:name:action`
// scope whose name has none. Other resource types, including classed
// repositories such as `repository(plugin)`, are left alone.
func CompleteScope(scope string) string {
	parts := strings.Split(scope, ":")
	if len(parts) != 3 || parts[0] != "repository" || strings.Contains(parts[1], "/") {
		return scope
	}
	parts[1] = defaultNamespace + parts[1]
	return strings.Join(parts, ":")
}

// CompleteRepositoryPath adds the default namespace to a
// /v2/{name}/{kind}/{reference} path whose name has none.
func CompleteRepositoryPath(path string) string {
	m := repositoryPath.FindStringSubmatch(path)
	if m == nil {
		return path
	}
	return "/v2/" + defaultNamespace + m[1] + "/" + m[2] + "/" + m[3]
}
