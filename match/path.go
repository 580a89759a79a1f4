package match

// PathStartsWith reports whether path is prefix itself or lies beneath it.
// A bare string prefix is never enough: "/dockerx" does not start with
// "/docker", while "/docker" and "/docker/foo" both do.
func PathStartsWith(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return path == prefix
	}
	return path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}
