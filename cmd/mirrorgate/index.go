package main

import (
	"encoding/json"
	"net/http"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
)

const (
	projectRepo   = "https://github.com/csmith/mirrorgate"
	projectAuthor = "csmith"
)

type indexUsage struct {
	Registry map[string]string `json:"registry"`
	Source   map[string]string `json:"source"`
}

type indexResponse struct {
	Name    string     `json:"name"`
	Version string     `json:"version"`
	Repo    string     `json:"repo"`
	Author  string     `json:"author"`
	Usage   indexUsage `json:"usage"`
}

// index describes the mirror at /, and answers 404 everywhere else.
type index struct {
	body []byte
}

func newIndex(settings *config.Settings, table *config.Table) *index {
	res := indexResponse{
		Name:    settings.ServiceName,
		Version: settings.Version,
		Repo:    projectRepo,
		Author:  projectAuthor,
		Usage: indexUsage{
			Registry: make(map[string]string),
			Source:   make(map[string]string),
		},
	}

	for _, m := range table.Registries() {
		res.Usage.Registry[m.Prefix()] = m.Upstream
	}
	for _, m := range table.Sources() {
		res.Usage.Source[m.Prefix()] = m.Upstream
	}

	// Maps of strings always marshal.
	body, _ := json.Marshal(res)
	return &index{body: body}
}

func (i *index) Handle(w http.ResponseWriter, r *dispatch.Request) {
	if r.Path != "/" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(i.body)
	}
}
