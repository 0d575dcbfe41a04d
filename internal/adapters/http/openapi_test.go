package http_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

// findOpenAPISpec walks up from the test directory to api/openapi.yaml.
func findOpenAPISpec(t *testing.T) string {
	t.Helper()
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	data, err := os.ReadFile(findOpenAPISpec(t))
	if err != nil {
		t.Fatalf("read openapi.yaml: %v", err)
	}
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("parse openapi.yaml: %v", err)
	}
	return doc
}

func TestOpenAPIDocument(t *testing.T) {
	doc := loadOpenAPI(t)
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("validation failed: %v", err)
	}

	for _, path := range []string{
		"/v1/health",
		"/v1/ready",
		"/v1/runs",
		"/v1/runs/{target}",
		"/v1/progress/{target}",
		"/graphql",
	} {
		if item := doc.Paths.Find(path); item == nil {
			t.Errorf("path %s missing", path)
		}
	}

	for _, name := range []string{"Run", "TargetRuns", "PassEvent", "Pagination", "APIError"} {
		if doc.Components.Schemas[name] == nil {
			t.Errorf("schema %s missing", name)
		}
	}
}

func TestOpenAPIInfo(t *testing.T) {
	doc := loadOpenAPI(t)
	if doc.Info.Title != "Beacon Scraper Status API" {
		t.Errorf("title = %q", doc.Info.Title)
	}
	if doc.Info.Version != "1.0.0" {
		t.Errorf("version = %q", doc.Info.Version)
	}
	if len(doc.Servers) == 0 {
		t.Error("expected at least one server")
	}
}
