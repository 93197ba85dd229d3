package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notiq/pkg/logx"
)

func newLarkTest(t *testing.T, secret string, handler http.HandlerFunc) *larkConnector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := newLark(Properties{Webhook: srv.URL, Secret: secret}, srv.Client(), nil, logx.Nop())
	if err != nil {
		t.Fatalf("newLark: %v", err)
	}
	return c
}

func TestLarkUnsignedBodyHasNoSignature(t *testing.T) {
	t.Parallel()
	var got map[string]any
	c := newLarkTest(t, "", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
	})

	if err := c.SendText(context.Background(), "hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if _, ok := got["sign"]; ok {
		t.Fatal("unsigned request carries sign field")
	}
	if _, ok := got["timestamp"]; ok {
		t.Fatal("unsigned request carries timestamp field")
	}
	if got["msg_type"] != "text" {
		t.Fatalf("msg_type = %v", got["msg_type"])
	}
}

func TestLarkSignedBodyCarriesSignature(t *testing.T) {
	t.Parallel()
	var got map[string]any
	c := newLarkTest(t, "sec", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"code":0}`))
	})

	if err := c.SendText(context.Background(), "hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got["sign"] == nil || got["timestamp"] == nil {
		t.Fatalf("signed request missing fields: %v", got)
	}
}

func TestLarkSignVariant(t *testing.T) {
	t.Parallel()
	// The secret-only variant: the key is "{timestamp}\n{secret}" and the
	// signed message is empty, so the signature depends only on those two.
	s1 := larkSign(1700000000, "sec")
	s2 := larkSign(1700000001, "sec")
	if s1 == s2 {
		t.Fatal("different timestamps must produce different signatures")
	}
	if larkSign(1700000000, "sec") != s1 {
		t.Fatal("signature must be deterministic")
	}
	if larkSign(1700000000, "other") == s1 {
		t.Fatal("different secrets must produce different signatures")
	}
}

func TestLarkHTTPErrorReportsStatusNotDecode(t *testing.T) {
	t.Parallel()
	c := newLarkTest(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})
	err := c.SendText(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error on http 502")
	}
	if !strings.Contains(err.Error(), "http 502") {
		t.Fatalf("err = %v, want http 502 surfaced", err)
	}
	if strings.Contains(err.Error(), "decode") {
		t.Fatalf("err = %v, must not report the HTML body as a decode failure", err)
	}
}

func TestLarkBusinessErrorSurfaces(t *testing.T) {
	t.Parallel()
	c := newLarkTest(t, "", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":19021,"msg":"sign match fail"}`))
	})
	if err := c.SendText(context.Background(), "hi"); err == nil {
		t.Fatal("expected business error")
	}
}

func TestLarkMarkdownCard(t *testing.T) {
	t.Parallel()
	var got map[string]any
	c := newLarkTest(t, "", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"code":0}`))
	})

	if err := c.SendMarkdown(context.Background(), Markdown{Title: "Daily", Text: "**42**"}); err != nil {
		t.Fatalf("SendMarkdown: %v", err)
	}
	if got["msg_type"] != "interactive" {
		t.Fatalf("msg_type = %v", got["msg_type"])
	}
	card := got["card"].(map[string]any)
	if card["header"] == nil {
		t.Fatal("card header missing")
	}
}

func TestLarkImagePost(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	t.Cleanup(srv.Close)

	up := &fakeUploader{url: "https://cdn/x.png"}
	c, err := newLark(Properties{Webhook: srv.URL}, srv.Client(), up, logx.Nop())
	if err != nil {
		t.Fatalf("newLark: %v", err)
	}

	msg := ImageMessage{Images: []Image{{Base64: "aW1n", Filename: "x.png"}, {}}}
	if err := c.SendImage(context.Background(), msg); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if got["msg_type"] != "post" {
		t.Fatalf("msg_type = %v", got["msg_type"])
	}
	if len(up.calls) != 1 {
		t.Fatalf("upload calls = %d", len(up.calls))
	}
}
