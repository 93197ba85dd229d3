package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"notiq/pkg/logx"
)

func TestUploadRoundTrip(t *testing.T) {
	t.Parallel()

	var gotName, gotAuth string
	var gotBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotBytes, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://cdn.example.com/a.png"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Token: "tok"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	url, err := c.Upload(context.Background(), File{Filename: "a.png", Content: []byte{1, 2, 3}, ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://cdn.example.com/a.png" {
		t.Fatalf("url = %q", url)
	}
	if gotName != "a.png" {
		t.Fatalf("filename = %q", gotName)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if len(gotBytes) != 3 {
		t.Fatalf("bytes = %v", gotBytes)
	}
}

func TestUploadErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Upload(context.Background(), File{Filename: "a.png", Content: []byte{1}}); err == nil {
		t.Fatal("expected error on http 403")
	}
	if _, err := c.Upload(context.Background(), File{Filename: "a.png"}); err == nil {
		t.Fatal("expected error on empty content")
	}
	if _, err := NewClient(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error on missing endpoint")
	}
}
