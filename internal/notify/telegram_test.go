package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"notiq/pkg/logx"
)

// telegramCapture records Bot API calls. The bot wire protocol sends
// plain requests as JSON and requests with attached files as multipart;
// both carry grouped media as a JSON array in the "media" field.
type telegramCapture struct {
	mu      sync.Mutex
	methods []string
	params  []map[string]string
	media   [][]map[string]any
	files   []int
}

func (rec *telegramCapture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := path.Base(r.URL.Path)

		params := map[string]string{}
		nfiles := 0
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(8 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for k, v := range r.MultipartForm.Value {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}
			for _, headers := range r.MultipartForm.File {
				nfiles += len(headers)
			}
		} else {
			_ = json.NewDecoder(r.Body).Decode(&params)
		}

		var items []map[string]any
		if m := params["media"]; m != "" {
			_ = json.Unmarshal([]byte(m), &items)
		}

		rec.mu.Lock()
		rec.methods = append(rec.methods, method)
		rec.params = append(rec.params, params)
		rec.media = append(rec.media, items)
		rec.files = append(rec.files, nfiles)
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if method == "sendMediaGroup" {
			_, _ = w.Write([]byte(`{"ok":true,"result":[{"message_id":1,"chat":{"id":42,"type":"private"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42,"type":"private"}}}`))
	}
}

func newTelegramTest(t *testing.T, rec *telegramCapture) *telegramConnector {
	t.Helper()
	srv := httptest.NewServer(rec.handler())
	t.Cleanup(srv.Close)
	c, err := newTelegram(Properties{Token: "tok", ChatID: 42}, srv.Client(), logx.Nop())
	if err != nil {
		t.Fatalf("newTelegram: %v", err)
	}
	c.bot.URL = srv.URL
	return c
}

func TestTelegramText(t *testing.T) {
	t.Parallel()
	rec := &telegramCapture{}
	c := newTelegramTest(t, rec)

	if err := c.SendText(context.Background(), "hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if rec.methods[0] != "sendMessage" {
		t.Fatalf("method = %q, want sendMessage", rec.methods[0])
	}
	if rec.params[0]["text"] != "hi" || rec.params[0]["chat_id"] != "42" {
		t.Fatalf("params = %v", rec.params[0])
	}
}

func TestTelegramSinglePhotoFallback(t *testing.T) {
	t.Parallel()
	rec := &telegramCapture{}
	c := newTelegramTest(t, rec)

	msg := ImageMessage{Title: "Daily", Images: []Image{{URL: "https://origin/a.png"}}}
	if err := c.SendImage(context.Background(), msg); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if len(rec.methods) != 1 || rec.methods[0] != "sendPhoto" {
		t.Fatalf("methods = %v, want one sendPhoto", rec.methods)
	}
	if rec.params[0]["photo"] != "https://origin/a.png" {
		t.Fatalf("photo = %q", rec.params[0]["photo"])
	}
	if rec.params[0]["caption"] != "Daily" {
		t.Fatalf("caption = %q", rec.params[0]["caption"])
	}
}

func TestTelegramAlbumSingleRequest(t *testing.T) {
	t.Parallel()
	rec := &telegramCapture{}
	c := newTelegramTest(t, rec)

	msg := ImageMessage{Title: "Daily"}
	for i := 0; i < 10; i++ {
		msg.Images = append(msg.Images, Image{URL: "https://origin/a.png"})
	}
	if err := c.SendImage(context.Background(), msg); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if len(rec.methods) != 1 || rec.methods[0] != "sendMediaGroup" {
		t.Fatalf("methods = %v, want one sendMediaGroup for 10 photos", rec.methods)
	}
	if len(rec.media[0]) != 10 {
		t.Fatalf("media items = %d, want 10", len(rec.media[0]))
	}
	if rec.media[0][0]["caption"] != "Daily" {
		t.Fatalf("first media item caption = %v", rec.media[0][0]["caption"])
	}
}

func TestTelegramAlbumOverflowChunks(t *testing.T) {
	t.Parallel()
	rec := &telegramCapture{}
	c := newTelegramTest(t, rec)

	msg := ImageMessage{}
	for i := 0; i < 12; i++ {
		msg.Images = append(msg.Images, Image{URL: "https://origin/a.png"})
	}
	if err := c.SendImage(context.Background(), msg); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if len(rec.methods) != 2 {
		t.Fatalf("requests = %d, want 2", len(rec.methods))
	}
	if len(rec.media[0]) != 10 || len(rec.media[1]) != 2 {
		t.Fatalf("chunks = %d/%d, want 10/2", len(rec.media[0]), len(rec.media[1]))
	}
}

func TestTelegramBase64AttachesMultipart(t *testing.T) {
	t.Parallel()
	rec := &telegramCapture{}
	c := newTelegramTest(t, rec)

	msg := ImageMessage{Images: []Image{
		{Base64: "data:image/png;base64,aW1n", Filename: "chart.png"},
		{URL: "https://origin/b.png"},
	}}
	if err := c.SendImage(context.Background(), msg); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if len(rec.methods) != 1 || rec.methods[0] != "sendMediaGroup" {
		t.Fatalf("methods = %v, want one sendMediaGroup", rec.methods)
	}
	if rec.files[0] != 1 {
		t.Fatalf("attached files = %d, want 1", rec.files[0])
	}
	if len(rec.media[0]) != 2 {
		t.Fatalf("media items = %d, want 2", len(rec.media[0]))
	}
	attached := 0
	for _, item := range rec.media[0] {
		if m, _ := item["media"].(string); strings.HasPrefix(m, "attach://") {
			attached++
		}
	}
	if attached != 1 {
		t.Fatalf("attach:// media refs = %d, want 1", attached)
	}
}

func TestTelegramEmptyImagesRejected(t *testing.T) {
	t.Parallel()
	rec := &telegramCapture{}
	c := newTelegramTest(t, rec)

	err := c.SendImage(context.Background(), ImageMessage{Images: []Image{{}, {}}})
	if !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("err = %v, want ErrEmptyImage", err)
	}
	if len(rec.methods) != 0 {
		t.Fatal("no request may be made for an all-empty batch")
	}
}
