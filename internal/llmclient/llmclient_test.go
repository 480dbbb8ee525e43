// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llmclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateAnswer_EmptyContextReturnsCannedRefusal(t *testing.T) {
	c := New("", "unused", "")
	answer, err := c.GenerateAnswer(t.Context(), "what is this?", "", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != noContextAnswer {
		t.Errorf("expected canned refusal, got %q", answer)
	}
}

func TestGenerateAnswer_SendsAssembledContextVerbatim(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"The answer is in [Source 1]."}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "test-model")
	answer, err := c.GenerateAnswer(t.Context(), "what is go?", "[Source 1: a.txt]\ngo is a language\n\n", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotBody, "go is a language") {
		t.Errorf("expected request body to contain verbatim context, got %s", gotBody)
	}
	if answer != "The answer is in [Source 1]." {
		t.Errorf("unexpected answer: %q", answer)
	}
}
