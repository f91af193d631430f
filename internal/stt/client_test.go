package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestTranscribe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("path = %q, want /transcribe", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		}
		conf := 0.91
		json.NewEncoder(w).Encode(transcribeResponse{Text: "hello there", Confidence: &conf})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	res, err := c.Transcribe(context.Background(), []byte("fake-wav"), "audio.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello there" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Confidence == nil || *res.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", res.Confidence)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(transcribeResponse{Text: "eventually fine"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	res, err := c.Transcribe(context.Background(), []byte("fake-wav"), "audio.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "eventually fine" {
		t.Errorf("text = %q", res.Text)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported codec", http.StatusUnsupportedMediaType)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	if _, err := c.Transcribe(context.Background(), []byte("fake-wav"), "audio.ogg"); err == nil {
		t.Fatal("want error on 4xx response")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestTranscribeGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	if _, err := c.Transcribe(context.Background(), []byte("fake-wav"), "audio.wav"); err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}
