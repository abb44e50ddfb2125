package models

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListLLMModelsExcludesEmbeddingModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[{"name":"llama3.2:3b"},{"name":"nomic-embed-text"},{"name":"mistral:7b"}]}`)
	}))
	defer server.Close()

	names, err := ListLLMModels(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("ListLLMModels: %v", err)
	}
	want := []string{"llama3.2:3b", "mistral:7b"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i, n := range names {
		if n != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, n, want[i])
		}
	}
}

func TestListLLMModelsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := ListLLMModels(context.Background(), server.URL); err == nil {
		t.Fatal("expected an error on a non-200 response")
	}
}
