package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/coordinator/middleware"
	"github.com/absmach/fedasync/coordinator/mocks"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/go-kit/kit/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var errFailed = errors.New("failed")

type call struct {
	method string
	invoke func(ctx context.Context, svc coordinator.Service) error
}

func calls() []call {
	update := fl.ClientUpdateMessage{ClientID: "a", Epoch: 0, GlobalEpoch: 1}

	return []call{
		{method: "register", invoke: func(ctx context.Context, svc coordinator.Service) error {
			return svc.Register(ctx, "a")
		}},
		{method: "handle-update", invoke: func(ctx context.Context, svc coordinator.Service) error {
			return svc.HandleUpdate(ctx, update)
		}},
		{method: "tick", invoke: func(ctx context.Context, svc coordinator.Service) error {
			return svc.Tick(ctx)
		}},
		{method: "resume", invoke: func(ctx context.Context, svc coordinator.Service) error {
			return svc.Resume(ctx)
		}},
		{method: "status", invoke: func(ctx context.Context, svc coordinator.Service) error {
			_, err := svc.Status(ctx)

			return err
		}},
		{method: "list-clients", invoke: func(ctx context.Context, svc coordinator.Service) error {
			_, err := svc.ListClients(ctx, 0, 10)

			return err
		}},
		{method: "list-rounds", invoke: func(ctx context.Context, svc coordinator.Service) error {
			_, err := svc.ListRounds(ctx, 0, 10)

			return err
		}},
	}
}

func newMock(err error) *mocks.MockService {
	svc := &mocks.MockService{}
	svc.On("Register", mock.Anything, "a").Return(err)
	svc.On("HandleUpdate", mock.Anything, mock.AnythingOfType("fl.ClientUpdateMessage")).Return(err)
	svc.On("Tick", mock.Anything).Return(err)
	svc.On("Resume", mock.Anything).Return(err)
	svc.On("Status", mock.Anything).Return(coordinator.Status{RunID: "run", Phase: coordinator.Training, CurrentEpoch: 2}, err)
	svc.On("ListClients", mock.Anything, uint64(0), uint64(10)).Return(coordinator.ClientPage{Limit: 10}, err)
	svc.On("ListRounds", mock.Anything, uint64(0), uint64(10)).Return(coordinator.RoundPage{Limit: 10}, err)

	return svc
}

type logLine struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Error string `json:"error"`
}

func TestLogging(t *testing.T) {
	cases := []struct {
		desc  string
		err   error
		level string
	}{
		{desc: "successful calls", level: "INFO"},
		{desc: "failed calls", err: errFailed, level: "WARN"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			inner := newMock(tc.err)
			svc := middleware.Logging(logger, inner)

			for _, c := range calls() {
				err := c.invoke(context.Background(), svc)
				assert.ErrorIs(t, err, tc.err, c.method)
			}
			inner.AssertExpectations(t)

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, len(calls()))
			for _, raw := range lines {
				var line logLine
				require.NoError(t, json.Unmarshal([]byte(raw), &line))
				switch {
				case tc.err != nil:
					assert.Equal(t, tc.level, line.Level, line.Msg)
					assert.Equal(t, errFailed.Error(), line.Error)
				case line.Msg == "Tick completed successfully", line.Msg == "Get status completed successfully":
					assert.Equal(t, "DEBUG", line.Level)
				default:
					assert.Equal(t, tc.level, line.Level, line.Msg)
				}
			}
		})
	}
}

type recorder struct {
	mu     sync.Mutex
	counts map[string]float64
	obs    map[string]int
}

func newRecorder() *recorder {
	return &recorder{counts: map[string]float64{}, obs: map[string]int{}}
}

type counter struct {
	rec    *recorder
	method string
}

func (c counter) With(lvs ...string) metrics.Counter {
	return counter{rec: c.rec, method: method(lvs)}
}

func (c counter) Add(delta float64) {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	c.rec.counts[c.method] += delta
}

type histogram struct {
	rec    *recorder
	method string
}

func (h histogram) With(lvs ...string) metrics.Histogram {
	return histogram{rec: h.rec, method: method(lvs)}
}

func (h histogram) Observe(float64) {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	h.rec.obs[h.method]++
}

func method(lvs []string) string {
	for i := 0; i+1 < len(lvs); i += 2 {
		if lvs[i] == "method" {
			return lvs[i+1]
		}
	}

	return ""
}

func TestMetrics(t *testing.T) {
	rec := newRecorder()
	inner := newMock(errFailed)
	svc := middleware.Metrics(counter{rec: rec}, histogram{rec: rec}, inner)

	for _, c := range calls() {
		for range 2 {
			assert.ErrorIs(t, c.invoke(context.Background(), svc), errFailed)
		}
		assert.InDelta(t, 2, rec.counts[c.method], 0, c.method)
		assert.Equal(t, 2, rec.obs[c.method], c.method)
	}
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	inner := newMock(nil)
	svc := middleware.Tracing(tp.Tracer("coordinator"), inner)

	cs := calls()
	for _, c := range cs {
		require.NoError(t, c.invoke(context.Background(), svc))
	}

	spans := sr.Ended()
	require.Len(t, spans, len(cs))
	for i, c := range cs {
		assert.Equal(t, c.method, spans[i].Name())
	}

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "a", attrs["client_id"])
}
