package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notiq/internal/notify"
	"notiq/pkg/logx"
)

type fakeConnector struct {
	tested    bool
	texts     []string
	markdowns []notify.Markdown
	images    []notify.ImageMessage
	err       error
}

func (f *fakeConnector) Test(ctx context.Context) error {
	f.tested = true
	return f.err
}

func (f *fakeConnector) SendText(ctx context.Context, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeConnector) SendMarkdown(ctx context.Context, msg notify.Markdown) error {
	f.markdowns = append(f.markdowns, msg)
	return f.err
}

func (f *fakeConnector) SendImage(ctx context.Context, msg notify.ImageMessage) error {
	f.images = append(f.images, msg)
	return f.err
}

type fakeFactory struct {
	conn  *fakeConnector
	err   error
	calls []string
}

func (f *fakeFactory) Connector(channelType string, props notify.Properties) (notify.Connector, error) {
	f.calls = append(f.calls, channelType)
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

type fakePublisher struct {
	err      error
	types    []string
	payloads []any
	times    []*time.Time
}

func (f *fakePublisher) SendMessage(ctx context.Context, msgType string, payload any, deliverAt *time.Time) error {
	f.types = append(f.types, msgType)
	f.payloads = append(f.payloads, payload)
	f.times = append(f.times, deliverAt)
	return f.err
}

func newTestWorker(conn *fakeConnector) (*Worker, *fakeFactory) {
	factory := &fakeFactory{conn: conn}
	return &Worker{dispatcher: factory, log: logx.Nop(), now: time.Now}, factory
}

func encode(t *testing.T, job Job) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	return raw
}

func TestHandleTextJob(t *testing.T) {
	t.Parallel()
	conn := &fakeConnector{}
	w, factory := newTestWorker(conn)

	job := Job{Channel: notify.ChannelSlack, Kind: KindText, Text: "report ready"}
	require.NoError(t, w.Handle(context.Background(), encode(t, job)))

	assert.Equal(t, []string{notify.ChannelSlack}, factory.calls)
	assert.Equal(t, []string{"report ready"}, conn.texts)
}

func TestHandleMarkdownJob(t *testing.T) {
	t.Parallel()
	conn := &fakeConnector{}
	w, _ := newTestWorker(conn)

	job := Job{Channel: notify.ChannelDing, Kind: KindMarkdown, Title: "Daily", Text: "**done**"}
	require.NoError(t, w.Handle(context.Background(), encode(t, job)))

	require.Len(t, conn.markdowns, 1)
	assert.Equal(t, notify.Markdown{Title: "Daily", Text: "**done**"}, conn.markdowns[0])
}

func TestHandleImageJob(t *testing.T) {
	t.Parallel()
	conn := &fakeConnector{}
	w, _ := newTestWorker(conn)

	job := Job{
		Channel: notify.ChannelLark,
		Kind:    KindImage,
		Title:   "Dashboard",
		Desc:    "panels",
		Images:  []notify.Image{{URL: "https://cdn/a.png"}},
	}
	require.NoError(t, w.Handle(context.Background(), encode(t, job)))

	require.Len(t, conn.images, 1)
	assert.Equal(t, "Dashboard", conn.images[0].Title)
	assert.Equal(t, []notify.Image{{URL: "https://cdn/a.png"}}, conn.images[0].Images)
}

func TestHandleTestJob(t *testing.T) {
	t.Parallel()
	conn := &fakeConnector{}
	w, _ := newTestWorker(conn)

	require.NoError(t, w.Handle(context.Background(), encode(t, Job{Channel: notify.ChannelEmail, Kind: KindTest})))
	assert.True(t, conn.tested)
}

func TestHandleUnknownKind(t *testing.T) {
	t.Parallel()
	conn := &fakeConnector{}
	w, _ := newTestWorker(conn)

	err := w.Handle(context.Background(), encode(t, Job{Channel: notify.ChannelSlack, Kind: "carrier-pigeon"}))
	assert.ErrorContains(t, err, "unknown job kind")
}

func TestHandleUnknownChannelPropagates(t *testing.T) {
	t.Parallel()
	w := &Worker{dispatcher: &fakeFactory{err: notify.ErrUnknownChannel}, log: logx.Nop()}

	err := w.Handle(context.Background(), encode(t, Job{Channel: "bogus", Kind: KindText}))
	assert.ErrorIs(t, err, notify.ErrUnknownChannel)
}

func TestHandleMalformedPayload(t *testing.T) {
	t.Parallel()
	w, _ := newTestWorker(&fakeConnector{})

	err := w.Handle(context.Background(), json.RawMessage(`{nope`))
	assert.Error(t, err)
}

func TestRecurringJobRequeued(t *testing.T) {
	t.Parallel()
	conn := &fakeConnector{}
	w, _ := newTestWorker(conn)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	pub := &fakePublisher{}
	w.SetRequeue(pub, "notify.delivery")

	job := Job{Channel: notify.ChannelSlack, Kind: KindText, Text: "hourly digest", Schedule: "30m"}
	require.NoError(t, w.Handle(context.Background(), encode(t, job)))

	require.Len(t, pub.times, 1)
	assert.Equal(t, "notify.delivery", pub.types[0])
	assert.True(t, pub.times[0].Equal(base.Add(30*time.Minute)), "next fire = %v", pub.times[0])

	requeued, ok := pub.payloads[0].(Job)
	require.True(t, ok)
	assert.Equal(t, job, requeued, "requeued job must be unchanged")
}

func TestRecurringJobFailureNotRequeued(t *testing.T) {
	t.Parallel()
	sendErr := errors.New("gateway timeout")
	w, _ := newTestWorker(&fakeConnector{err: sendErr})
	pub := &fakePublisher{}
	w.SetRequeue(pub, "notify.delivery")

	job := Job{Channel: notify.ChannelSlack, Kind: KindText, Text: "x", Schedule: "30m"}
	err := w.Handle(context.Background(), encode(t, job))
	assert.ErrorIs(t, err, sendErr)
	assert.Empty(t, pub.types, "failed delivery must not reschedule")
}

func TestBadScheduleDoesNotFailDelivery(t *testing.T) {
	t.Parallel()
	conn := &fakeConnector{}
	w, _ := newTestWorker(conn)
	pub := &fakePublisher{}
	w.SetRequeue(pub, "notify.delivery")

	job := Job{Channel: notify.ChannelSlack, Kind: KindText, Text: "x", Schedule: "not-a-schedule"}
	require.NoError(t, w.Handle(context.Background(), encode(t, job)))
	assert.Empty(t, pub.types)
}

func TestHandleConnectorError(t *testing.T) {
	t.Parallel()
	sendErr := errors.New("gateway timeout")
	w, _ := newTestWorker(&fakeConnector{err: sendErr})

	err := w.Handle(context.Background(), encode(t, Job{Channel: notify.ChannelSlack, Kind: KindText, Text: "x"}))
	assert.ErrorIs(t, err, sendErr)
}
