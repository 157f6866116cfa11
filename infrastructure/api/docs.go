// Package api serves the vectorizer REST API, its OpenAPI documentation and
// the MCP endpoint.
package api

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed openapi.json
var openapiSpec embed.FS

// SwaggerUIHTML returns the HTML template for Swagger UI.
func SwaggerUIHTML(specURL string) string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Vectorizer API Documentation</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
    <style>
        html { box-sizing: border-box; overflow: -moz-scrollbars-vertical; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin:0; background: #fafafa; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" charset="UTF-8"></script>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-standalone-preset.js" charset="UTF-8"></script>
    <script>
        window.onload = function() {
            const ui = SwaggerUIBundle({
                url: "` + specURL + `",
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIStandalonePreset
                ],
                plugins: [
                    SwaggerUIBundle.plugins.DownloadUrl
                ],
                layout: "StandaloneLayout"
            });
            window.ui = ui;
        };
    </script>
</body>
</html>`
}

// specServerURL is the placeholder server URL in the embedded spec.
const specServerURL = `"url": "//localhost:8080/api/v1"`

// DocsRouter serves Swagger UI and the embedded OpenAPI document.
type DocsRouter struct {
	specURL string
}

// NewDocsRouter creates a DocsRouter whose UI loads the spec from specURL.
func NewDocsRouter(specURL string) *DocsRouter {
	return &DocsRouter{specURL: specURL}
}

// Routes returns the documentation routes.
func (d *DocsRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", d.ui)
	router.Get("/openapi.json", d.spec)
	return router
}

func (d *DocsRouter) ui(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(SwaggerUIHTML(d.specURL)))
}

// spec serves the OpenAPI document with its server URL pointing at the host
// that asked for it, so "Try it out" works behind proxies.
func (d *DocsRouter) spec(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(openapiSpec, "openapi.json")
	if err != nil {
		http.Error(w, "spec not found", http.StatusNotFound)
		return
	}
	serverURL := fmt.Sprintf(`"url": "%s/api/v1"`, requestBaseURL(r))
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(bytes.ReplaceAll(data, []byte(specServerURL), []byte(serverURL)))
}

// requestBaseURL derives scheme://host for r, honouring X-Forwarded-Proto
// and X-Forwarded-Host.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host
}
