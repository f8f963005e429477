package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Transcribe_Success(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		gotModel = r.FormValue("model")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		f.Close()
		if hdr.Filename != "audio.mp3" {
			t.Errorf("filename = %q, want audio.mp3", hdr.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "whisper-1", slog.Default())
	text, err := c.Transcribe(context.Background(), []byte("fakeaudio"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q", gotModel)
	}
}

func TestClient_Transcribe_StatusMappedToHTTPError(t *testing.T) {
	for _, status := range []int{429, 500, 401, 400} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"internal detail that must not leak"}}`))
		}))

		c := NewClient(srv.URL, "secret", "whisper-1", slog.Default())
		_, err := c.Transcribe(context.Background(), []byte("x"), "audio/wav")
		srv.Close()

		var he *HTTPError
		if !errors.As(err, &he) {
			t.Fatalf("status %d: err = %v, want *HTTPError", status, err)
		}
		if he.Status != status {
			t.Errorf("HTTPError.Status = %d, want %d", he.Status, status)
		}
	}
}

func TestClient_Transcribe_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "whisper-1", slog.Default())
	if _, err := c.Transcribe(context.Background(), []byte("x"), "audio/wav"); err == nil {
		t.Fatal("expected decode error")
	}
}
