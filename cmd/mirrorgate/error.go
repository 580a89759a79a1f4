package main

import (
	"log/slog"
	"net/http"
)

const badGatewayError = `<!doctype html>
<html lang="en">
<head>
  <title>502 Bad Gateway</title>
</head>
<body>
  <h1>Bad Gateway</h1>
  <p>The mirror was unable to reach the upstream server. Please try again later.</p>
</body>
</html>`

// handleError handles a forwarder not being able to reach an upstream
func handleError(writer http.ResponseWriter, request *http.Request, err error) {
	slog.Warn("Failed to connect to upstream", "upstream", request.URL.Host, "error", err)
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.WriteHeader(http.StatusBadGateway)
	_, _ = writer.Write([]byte(badGatewayError))
}
