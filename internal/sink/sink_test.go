package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"screenqa/internal/capture"
	"screenqa/internal/pipeline"
	"screenqa/internal/provider"
	"screenqa/internal/storage"
	"screenqa/internal/transport"
	"screenqa/pkg/logx"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func answerDelivery() pipeline.Delivery {
	return pipeline.Delivery{
		Record: pipeline.ResultRecord{
			CaptureID:  "20240301100000_000",
			ProviderID: "gemini",
			Outcome:    pipeline.OutcomeAnswer,
			Answer:     "Paris",
			Started:    fixedNow,
			Took:       1500 * time.Millisecond,
		},
		SampleText: "What is the capital of France?",
		HasSample:  true,
	}
}

func TestConsoleFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.now = func() time.Time { return fixedNow }
	if err := c.Deliver(context.Background(), answerDelivery()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	rule := strings.Repeat("-", len("gemini")+20)
	want := "\n[2024-03-01 10:00:00] Answer (gemini, capture 20240301100000_000):\n" + rule + "\nParis\n" + rule + "\n"
	if buf.String() != want {
		t.Fatalf("got %q\nwant %q", buf.String(), want)
	}
}

func TestCaptureLogLayout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "capture.log")
	region := capture.Region{Top: 10, Left: 20, Width: 300, Height: 400}
	l, err := OpenCaptureLog(path, &region, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := l.RecordCapture(ctx, pipeline.CaptureEntry{ID: "c1", Time: fixedNow, Text: "Q?"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	d := answerDelivery()
	d.Record.CaptureID = "c1"
	if err := l.Deliver(ctx, d); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Deliver(ctx, d); err == nil {
		t.Fatalf("expected error after close")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	for _, want := range []string{
		"Selected Capture Region: " + region.String(),
		"\n--- Capture ID: c1 (2024-03-01 10:00:00) ---\nScraped Text:\nQ?\n--- Responses ---",
		"\nResponse from gemini:\nParis\n---\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("log missing %q:\n%s", want, got)
		}
	}
	if !strings.HasPrefix(got, "--- Session Start: ") {
		t.Fatalf("missing session header:\n%s", got)
	}
}

func TestCaptureLogFullScreenHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "capture.log")
	l, err := OpenCaptureLog(path, nil, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = l.Close()
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "Selected Capture Region: full screen") {
		t.Fatalf("header: %q", b)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdefgh", 3, "abc..."},
		{"héllo wörld", 5, "héllo..."},
		{"anything", 0, "anything"},
	}
	for _, tc := range cases {
		if got := Preview(tc.in, tc.n); got != tc.want {
			t.Fatalf("Preview(%q,%d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

type fakeNotifier struct {
	title, msg string
	err        error
}

func (f *fakeNotifier) Notify(_ context.Context, title, msg string) error {
	f.title, f.msg = title, msg
	return f.err
}

func TestDesktopNotification(t *testing.T) {
	t.Parallel()

	n := &fakeNotifier{}
	d := NewDesktop(n, 4)
	if !d.Background() {
		t.Fatalf("desktop sink should run in background")
	}
	del := answerDelivery()
	del.Record.Answer = "Paris, France"
	if err := d.Deliver(context.Background(), del); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n.title != "Answer from Gemini (Capture 20240301100000_000)" {
		t.Fatalf("title: %q", n.title)
	}
	if n.msg != "Pari..." {
		t.Fatalf("message: %q", n.msg)
	}

	n.err = ErrNotifyUnsupported
	if err := d.Deliver(context.Background(), del); !errors.Is(err, ErrNotifyUnsupported) {
		t.Fatalf("err: %v", err)
	}
}

func TestEmailConfigValidate(t *testing.T) {
	t.Parallel()

	if err := (EmailConfig{}).Validate(); !errors.Is(err, ErrEmailNotConfigured) {
		t.Fatalf("expected ErrEmailNotConfigured, got %v", err)
	}
	cfg := EmailConfig{Host: "smtp.example.com", Port: 587, Username: "u@example.com", Password: "pw"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "recipient") {
		t.Fatalf("expected missing recipient, got %v", err)
	}
	cfg.To = "dest@example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestEmailContent(t *testing.T) {
	t.Parallel()

	subject, body := EmailContent(answerDelivery())
	if subject != "AI Response from gemini (Capture 20240301100000_000)" {
		t.Fatalf("subject: %q", subject)
	}
	want := "Captured Text for ID 20240301100000_000:\n---\nWhat is the capital of France?\n---\nResponse from gemini:\n---\nParis\n---"
	if body != want {
		t.Fatalf("body:\n%q\nwant\n%q", body, want)
	}

	evicted := answerDelivery()
	evicted.HasSample = false
	evicted.SampleText = ""
	_, body = EmailContent(evicted)
	if !strings.Contains(body, SampleUnavailable) {
		t.Fatalf("missing placeholder: %q", body)
	}
}

// fakeSMTP accepts one session and hands back the DATA payload.
func fakeSMTP(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 fake ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				_ = tp.PrintfLine("250-fake")
				_ = tp.PrintfLine("250 8BITMIME")
			case strings.HasPrefix(cmd, "DATA"):
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				got <- string(data)
				_ = tp.PrintfLine("250 queued")
			case strings.HasPrefix(cmd, "QUIT"):
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 ok")
			}
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, got
}

func TestEmailDeliversOverSMTP(t *testing.T) {
	t.Parallel()

	host, port, got := fakeSMTP(t)
	e, err := NewEmail(EmailConfig{
		Host: host, Port: port,
		Username: "bot@example.com", Password: "pw",
		To: "me@example.com", Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := e.Deliver(context.Background(), answerDelivery()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	select {
	case msg := <-got:
		for _, want := range []string{
			"From: bot@example.com",
			"To: me@example.com",
			"Subject: AI Response from gemini (Capture 20240301100000_000)",
			"What is the capital of France?",
			"Response from gemini:",
		} {
			if !strings.Contains(msg, want) {
				t.Fatalf("message missing %q:\n%s", want, msg)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no message received")
	}
}

func TestEmailRequiresStartTLSWhenEnabled(t *testing.T) {
	t.Parallel()

	host, port, _ := fakeSMTP(t)
	e, err := NewEmail(EmailConfig{
		Host: host, Port: port, UseTLS: true,
		Username: "bot@example.com", Password: "pw",
		To: "me@example.com", Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = e.Deliver(context.Background(), answerDelivery())
	if err == nil || !strings.Contains(err.Error(), "STARTTLS") {
		t.Fatalf("expected STARTTLS error, got %v", err)
	}
}

type fakeSender struct {
	mu   sync.Mutex
	to   transport.ChatTarget
	text string
	opt  *transport.SendOptions
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to, f.text, f.opt = to, text, opt
	return nil
}

func TestTelegramSink(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	to := transport.ChatTarget{ChatID: -100123, ThreadID: 7}
	sink := NewTelegram(s, to, true)
	if err := sink.Deliver(context.Background(), answerDelivery()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if s.to != to {
		t.Fatalf("target: %+v", s.to)
	}
	if s.text != "Gemini (capture 20240301100000_000)\n\nParis" {
		t.Fatalf("text: %q", s.text)
	}
	if s.opt == nil || !s.opt.Silent || !s.opt.DisablePreview {
		t.Fatalf("options: %+v", s.opt)
	}
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakePublisher struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic, p.qos, p.retained = topic, qos, retained
	p.payload, _ = payload.([]byte)
	return newFakeToken(p.err)
}

func TestMQTTPublish(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	m := &MQTT{cfg: MQTTConfig{Topic: "screenqa/results/", QoS: 1, Timeout: time.Second}, client: pub}
	if err := m.Deliver(context.Background(), answerDelivery()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if pub.topic != "screenqa/results/gemini" || pub.qos != 1 || pub.retained {
		t.Fatalf("publish args: %q qos=%d retained=%v", pub.topic, pub.qos, pub.retained)
	}
	var got mqttPayload
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.CaptureID != "20240301100000_000" || got.Outcome != "answer" || got.Text != "Paris" || got.TookMS != 1500 {
		t.Fatalf("payload: %+v", got)
	}

	pub.err = errors.New("not connected")
	if err := m.Deliver(context.Background(), answerDelivery()); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestDialMQTTRequiresBroker(t *testing.T) {
	t.Parallel()

	if _, err := DialMQTT(MQTTConfig{}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty broker")
	}
}

type memStore struct {
	mu       sync.Mutex
	captures []storage.CaptureRow
	results  []storage.ResultRow
}

func (m *memStore) AppendCapture(_ context.Context, c storage.CaptureRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures = append(m.captures, c)
	return nil
}

func (m *memStore) AppendResult(_ context.Context, r storage.ResultRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func (m *memStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }
func (m *memStore) Close() error                                  { return nil }

func TestHistoryRows(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	h := NewHistory(st, "run-1")
	ctx := context.Background()
	region := capture.Region{Top: 1, Left: 2, Width: 3, Height: 4}
	if err := h.RecordCapture(ctx, pipeline.CaptureEntry{ID: "c1", Time: fixedNow, Text: "Q?", Region: &region}); err != nil {
		t.Fatal(err)
	}
	failed := answerDelivery()
	failed.Record.Outcome = pipeline.OutcomeError
	failed.Record.Answer = ""
	failed.Record.Err = "deadline exceeded"
	failed.Record.ErrKind = provider.KindTimeout
	if err := h.Deliver(ctx, failed); err != nil {
		t.Fatal(err)
	}

	if len(st.captures) != 1 || st.captures[0].RunID != "run-1" || st.captures[0].Region != region.String() {
		t.Fatalf("captures: %+v", st.captures)
	}
	if len(st.results) != 1 {
		t.Fatalf("results: %+v", st.results)
	}
	r := st.results[0]
	if r.Outcome != "error" || r.ErrorKind != "timeout" || r.TookMS != 1500 || !r.At.Equal(fixedNow.Add(1500*time.Millisecond)) {
		t.Fatalf("result row: %+v", r)
	}
}
