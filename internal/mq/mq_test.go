package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Bulksub/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wire прогоняет сообщение через JSON так же, как это делает consumer.
func wire(t *testing.T, msg *Message) *Message {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Message
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &out
}

// --- Control Tests ---

func TestParseControl(t *testing.T) {
	runID := uuid.New()

	tests := []struct {
		name    string
		msg     *Message
		want    ControlPayload
		wantErr bool
	}{
		{
			name: "start with delay",
			msg: &Message{Type: MessageTypeRunControl, Payload: ControlPayload{
				RunID: runID, Action: ActionStart, DelayMs: 4000,
			}},
			want: ControlPayload{RunID: runID, Action: ActionStart, DelayMs: 4000},
		},
		{
			name: "raw map payload",
			msg: &Message{Type: MessageTypeRunControl, Payload: map[string]any{
				"run_id": runID.String(), "action": "retry_quota",
			}},
			want: ControlPayload{RunID: runID, Action: ActionRetryQuota},
		},
		{
			name:    "wrong type",
			msg:     &Message{Type: MessageTypeRunStarted, Payload: ControlPayload{RunID: runID, Action: ActionStart}},
			wantErr: true,
		},
		{
			name:    "missing run id",
			msg:     &Message{Type: MessageTypeRunControl, Payload: ControlPayload{Action: ActionPause}},
			wantErr: true,
		},
		{
			name:    "unknown action",
			msg:     &Message{Type: MessageTypeRunControl, Payload: ControlPayload{RunID: runID, Action: "delete"}},
			wantErr: true,
		},
		{
			name:    "negative delay",
			msg:     &Message{Type: MessageTypeRunControl, Payload: ControlPayload{RunID: runID, Action: ActionStart, DelayMs: -1}},
			wantErr: true,
		},
		{
			name:    "malformed run id",
			msg:     &Message{Type: MessageTypeRunControl, Payload: map[string]any{"run_id": "nope", "action": "start"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseControl(wire(t, tt.msg))
			if tt.wantErr {
				if !errors.Is(err, ErrPermanent) {
					t.Fatalf("expected ErrPermanent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestControlAction_Valid(t *testing.T) {
	for _, a := range []ControlAction{ActionStart, ActionPause, ActionResume, ActionToggle, ActionRetryQuota, ActionAutoResume} {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if ControlAction("stop").Valid() {
		t.Error("stop should not be valid")
	}
}

// --- Notifier Tests ---

type recordingPublisher struct {
	types    []MessageType
	payloads []RunEventPayload
	ctxErr   error
	err      error
}

func (p *recordingPublisher) PublishRunEvent(ctx context.Context, msgType MessageType, payload RunEventPayload) error {
	p.types = append(p.types, msgType)
	p.payloads = append(p.payloads, payload)
	p.ctxErr = ctx.Err()
	return p.err
}

func TestRunNotifier(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewRunNotifier(pub, discardLogger())

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ev := worker.Event{RunID: uuid.New(), Type: worker.EventPaused, Reason: "quota", At: at}

	// Отменённый контекст воркера не мешает публикации.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, ev)

	if len(pub.types) != 1 || pub.types[0] != MessageTypeRunPaused {
		t.Fatalf("types = %v, want [run.paused]", pub.types)
	}
	if p := pub.payloads[0]; p.RunID != ev.RunID || p.Reason != "quota" || !p.At.Equal(at) {
		t.Errorf("unexpected payload: %+v", p)
	}
	if pub.ctxErr != nil {
		t.Errorf("publish context should not be cancelled, got %v", pub.ctxErr)
	}
}

func TestRunNotifier_PublishErrorIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: ErrNoChannel}
	n := NewRunNotifier(pub, discardLogger())

	n.Notify(context.Background(), worker.Event{RunID: uuid.New(), Type: worker.EventCompleted})

	if len(pub.types) != 1 || pub.types[0] != MessageTypeRunCompleted {
		t.Errorf("types = %v, want [run.completed]", pub.types)
	}
}

func TestTopologyInfo(t *testing.T) {
	info := TopologyInfo()
	for _, name := range []string{string(ExchangeRuns), string(QueueRunsEvents), string(QueueRunsControl), string(QueueDLQControl)} {
		if !strings.Contains(info, name) {
			t.Errorf("topology info missing %s", name)
		}
	}
}

func TestNextReconnectDelay(t *testing.T) {
	d := reconnectMinDelay
	var got []time.Duration
	for i := 0; i < 7; i++ {
		d = nextReconnectDelay(d)
		got = append(got, d)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delays = %v, want %v", got, want)
		}
	}
}

// --- Live Tests ---

// TestLive_ControlRoundTrip требует RabbitMQ: BULKSUB_TEST_AMQP_URL=amqp://...
func TestLive_ControlRoundTrip(t *testing.T) {
	url := os.Getenv("BULKSUB_TEST_AMQP_URL")
	if url == "" {
		t.Skip("BULKSUB_TEST_AMQP_URL not set")
	}

	logger := discardLogger()
	conn, err := NewConnection(url, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := SetupTopology(ctx, conn); err != nil {
		t.Fatalf("SetupTopology: %v", err)
	}

	want := ControlPayload{RunID: uuid.New(), Action: ActionToggle}
	got := make(chan ControlPayload, 1)

	consumer := NewConsumer(conn, logger, ConsumerConfig{
		Queue: string(QueueRunsControl),
		Handler: func(_ context.Context, d *Delivery) error {
			p, err := ParseControl(&d.Message)
			if err != nil {
				return err
			}
			if p.RunID == want.RunID {
				got <- p
			}
			return nil
		},
	})
	go consumer.Start(ctx)
	defer consumer.Stop()

	if err := NewPublisher(conn, logger).PublishControl(ctx, want); err != nil {
		t.Fatalf("PublishControl: %v", err)
	}

	select {
	case p := <-got:
		if p != want {
			t.Errorf("got %+v, want %+v", p, want)
		}
	case <-ctx.Done():
		t.Fatal("control message not received")
	}
}
