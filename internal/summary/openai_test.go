package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIGenerate_Success(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"  The product is priced above market.  "}}]}`)
	}))
	defer ts.Close()

	g, err := NewOpenAI(OpenAIConfig{BaseURL: ts.URL, APIKey: "sk-test", Model: "test-model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := g.Generate(context.Background(), fullPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "The product is priced above market." {
		t.Errorf("expected trimmed completion text, got %q", got)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("expected configured model, got %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || !strings.Contains(gotReq.Messages[0].Content, "Widget Deluxe 3000") {
		t.Errorf("expected prompt to mention the product, got %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[0].Content, "140.00 PLN") {
		t.Errorf("expected prompt to carry the RRP, got %q", gotReq.Messages[0].Content)
	}
}

func TestOpenAIGenerate_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer ts.Close()

	g, err := NewOpenAI(OpenAIConfig{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := g.Generate(context.Background(), fullPayload()); err == nil {
		t.Error("expected error from API failure")
	} else if !strings.Contains(err.Error(), "bad key") {
		t.Errorf("expected API message surfaced, got %v", err)
	}
}

func TestOpenAIGenerate_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer ts.Close()

	g, err := NewOpenAI(OpenAIConfig{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := g.Generate(context.Background(), fullPayload()); err == nil {
		t.Error("expected error for empty choices")
	}
}
