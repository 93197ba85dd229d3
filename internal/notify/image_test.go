package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"notiq/internal/upload"
)

type fakeUploader struct {
	calls []upload.File
	url   string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, file upload.File) (string, error) {
	f.calls = append(f.calls, file)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func TestStripDataURIPrefix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare", in: "AAAA", want: "AAAA"},
		{name: "png prefix", in: "data:image/png;base64,AAAA", want: "AAAA"},
		{name: "jpeg prefix", in: "data:image/jpeg;base64,QUJD", want: "QUJD"},
		{name: "no base64 marker", in: "data:text/plain,hello", want: "data:text/plain,hello"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := stripDataURI(tt.in); got != tt.want {
				t.Fatalf("stripDataURI(%q) = %q, want %q", tt.in, got, tt.want)
			}
			// Idempotent: stripping twice changes nothing.
			if got := stripDataURI(stripDataURI(tt.in)); got != tt.want {
				t.Fatalf("double strip of %q = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeImagePrefixEquivalence(t *testing.T) {
	t.Parallel()
	raw := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})

	a, err := decodeImage(Image{Base64: raw})
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	b, err := decodeImage(Image{Base64: "data:image/png;base64," + raw})
	if err != nil {
		t.Fatalf("decode prefixed: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("prefixed decode differs: %v vs %v", a, b)
	}
}

func TestContentTypeInference(t *testing.T) {
	t.Parallel()
	tests := []struct{ file, want string }{
		{"chart.png", "image/png"},
		{"chart.JPG", "image/jpeg"},
		{"chart.jpeg", "image/jpeg"},
		{"anim.gif", "image/gif"},
		{"pic.webp", "image/webp"},
		{"logo.svg", "image/svg+xml"},
		{"unknown.bin", "image/png"},
		{"noext", "image/png"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.file); got != tt.want {
			t.Fatalf("contentTypeFor(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestResolveImageURL(t *testing.T) {
	t.Parallel()

	t.Run("url passes through", func(t *testing.T) {
		up := &fakeUploader{url: "https://cdn/x.png"}
		u, err := resolveImageURL(context.Background(), up, Image{URL: "https://origin/y.png"}, 0)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if u != "https://origin/y.png" {
			t.Fatalf("url = %q", u)
		}
		if len(up.calls) != 0 {
			t.Fatal("uploader must not be called for url images")
		}
	})

	t.Run("base64 uploads", func(t *testing.T) {
		up := &fakeUploader{url: "https://cdn/x.png"}
		raw := base64.StdEncoding.EncodeToString([]byte("img"))
		u, err := resolveImageURL(context.Background(), up, Image{Base64: raw, Filename: "x.jpg"}, 0)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if u != "https://cdn/x.png" {
			t.Fatalf("url = %q", u)
		}
		if len(up.calls) != 1 {
			t.Fatalf("upload calls = %d", len(up.calls))
		}
		if up.calls[0].ContentType != "image/jpeg" {
			t.Fatalf("content type = %q", up.calls[0].ContentType)
		}
	})

	t.Run("empty rejected", func(t *testing.T) {
		_, err := resolveImageURL(context.Background(), &fakeUploader{}, Image{}, 0)
		if !errors.Is(err, ErrEmptyImage) {
			t.Fatalf("err = %v, want ErrEmptyImage", err)
		}
	})
}
