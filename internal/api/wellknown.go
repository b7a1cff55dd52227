package api

import "net/http"

// Manifest describes the running server for /.well-known/langfuse-mcp.json.
type Manifest struct {
	Name    string
	Version string
	Mode    string
	Project string
	// Tools returns the names of the currently visible operations.
	Tools func() []string
}

type manifestAuth struct {
	Type     string `json:"type"`
	Header   string `json:"header"`
	Required bool   `json:"required"`
}

type manifestBody struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Mode      string            `json:"mode"`
	Project   string            `json:"project,omitempty"`
	Auth      manifestAuth      `json:"auth"`
	Endpoints map[string]string `json:"endpoints"`
	Tools     []string          `json:"tools"`
}

func wellKnownHandler(m Manifest, authRequired, mcpMounted bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := manifestBody{
			Name:    m.Name,
			Version: m.Version,
			Mode:    m.Mode,
			Project: m.Project,
			Auth: manifestAuth{
				Type:     "bearer",
				Header:   "Authorization",
				Required: authRequired,
			},
			Endpoints: map[string]string{
				"health":          "/health",
				"metrics":         "/metrics",
				"metrics_summary": "/metrics/summary",
			},
			Tools: []string{},
		}
		if mcpMounted {
			body.Endpoints["mcp"] = MCPPath
		}
		if m.Tools != nil {
			body.Tools = m.Tools()
		}
		writeJSON(w, http.StatusOK, body)
	}
}
