package main

import (
	"errors"
	"testing"

	"sampler/internal/providers/music"
)

func TestBuildRequestValidatesBeforeSubmit(t *testing.T) {
	_, err := buildRequest(requestFlags{model: "V4", custom: true, prompt: "la la"})
	var verr *music.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Field != "style" {
		t.Fatalf("field = %q, want style", verr.Field)
	}

	if _, err := buildRequest(requestFlags{model: "V4"}); err == nil {
		t.Fatal("empty prompt must be rejected")
	}
}

func TestBuildRequestParsesFlags(t *testing.T) {
	req, err := buildRequest(requestFlags{prompt: "lofi rain", model: "V4_5", vocal: "f"})
	if err != nil {
		t.Fatalf("buildRequest error: %v", err)
	}
	if req.Model != music.ModelV4_5 || req.Prompt != "lofi rain" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if _, err := buildRequest(requestFlags{prompt: "x", model: "V9"}); err == nil {
		t.Fatal("unknown model must be rejected")
	}
}
