package handlers

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

//go:embed openapi.json
var openAPISpec []byte

const docsCacheControl = "public, max-age=300"

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}} docs</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>body { margin: 0; } redoc { display: block; height: 100vh; }</style>
  </head>
  <body>
    <redoc spec-url="{{.SpecURL}}"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

type apiDocs struct {
	etag string
	page []byte
}

// loadDocs derives the spec's ETag and renders the docs page once. The page
// links the spec by version so browsers refetch it after an upgrade.
var loadDocs = sync.OnceValue(func() apiDocs {
	sum := sha256.Sum256(openAPISpec)
	docs := apiDocs{etag: `"` + hex.EncodeToString(sum[:8]) + `"`}

	var meta struct {
		Info struct {
			Title   string `json:"title"`
			Version string `json:"version"`
		} `json:"info"`
	}
	_ = json.Unmarshal(openAPISpec, &meta)
	title := meta.Info.Title
	if title == "" {
		title = "API"
	}
	specURL := "/v1/openapi.json"
	if meta.Info.Version != "" {
		specURL += "?v=" + url.QueryEscape(meta.Info.Version)
	}

	var buf bytes.Buffer
	_ = docsPage.Execute(&buf, struct{ Title, SpecURL string }{title, specURL})
	docs.page = buf.Bytes()
	return docs
})

// OpenAPIJSON serves the embedded document, answering 304 to a matching If-None-Match.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	docs := loadDocs()
	w.Header().Set("ETag", docs.etag)
	w.Header().Set("Cache-Control", docsCacheControl)
	if etagMatches(r.Header.Get("If-None-Match"), docs.etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", docsCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(loadDocs().page)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
