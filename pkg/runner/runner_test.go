package runner_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/internal/testutils"
	"github.com/aretw0/advisor/pkg/adapters/memory"
	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/gateway"
	"github.com/aretw0/advisor/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, svc *testutils.ScoringService) *runtime.Engine {
	t.Helper()
	fake := clock.NewFake()
	gw := gateway.New(svc.URL, gateway.WithClock(fake))
	e := runtime.NewEngine(gw, runtime.WithClock(fake), runtime.WithSessionID("cli"))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e
}

// failFirst makes endpoint fail its first n requests and then answer normally.
func failFirst(svc *testutils.ScoringService, endpoint string, n int) {
	payload, _ := json.Marshal(testutils.DefaultResponses()[endpoint])
	var mu sync.Mutex
	seen := 0
	svc.Handle(endpoint, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		mu.Lock()
		seen++
		fail := seen <= n
		mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	})
}

func decodeEvents(t *testing.T, out string) []runner.Event {
	t.Helper()
	var events []runner.Event
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var ev runner.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev), scanner.Text())
		events = append(events, ev)
	}
	return events
}

func TestRunner_HeadlessJSON(t *testing.T) {
	svc := testutils.NewScoringService(t)
	store := memory.NewStore()
	out := &bytes.Buffer{}

	r := runner.NewRunner(newEngine(t, svc),
		runner.WithInputHandler(runner.NewJSONHandler(strings.NewReader(""), out)),
		runner.WithStore(store, "cli-session"),
		runner.WithHeadless(true),
	)
	rs, err := r.Run(context.Background(), testutils.Context())
	require.NoError(t, err)
	assert.True(t, rs.Settled())

	events := decodeEvents(t, out.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, runner.EventResult, last.Type)
	require.NotNil(t, last.Result)
	assert.Equal(t, rs.Generation, last.Result.Generation)

	var progress int
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, runner.EventProgress, ev.Type)
		require.NotNil(t, ev.Progress)
		assert.GreaterOrEqual(t, ev.Progress.Progress, progress, "progress never goes backwards")
		progress = ev.Progress.Progress
	}
	assert.Equal(t, 100, progress)

	saved, err := store.Load(context.Background(), "cli-session")
	require.NoError(t, err)
	assert.Equal(t, rs.Generation, saved.Generation)
}

func TestRunner_RetryPromptRecoversCategory(t *testing.T) {
	svc := testutils.NewScoringService(t)
	failFirst(svc, gateway.EndpointCorrelation, 3)
	out := &bytes.Buffer{}

	r := runner.NewRunner(newEngine(t, svc),
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("weather\ncorrelation\n"), out)),
	)
	rs, err := r.Run(context.Background(), testutils.Context())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, rs.Task(domain.CategoryCorrelation).Status)
	assert.Empty(t, runner.FailedCategories(rs))

	text := out.String()
	assert.Contains(t, text, "1 of 5 categories failed (correlation)")
	assert.Contains(t, text, "unknown category")
	assert.Contains(t, text, "Correlations")
	assert.Equal(t, 4, svc.Calls(gateway.EndpointCorrelation))
}

func TestRunner_RetryAllThenGiveUp(t *testing.T) {
	svc := testutils.NewScoringService(t)
	svc.Fail(gateway.EndpointPredict, http.StatusInternalServerError)
	out := &bytes.Buffer{}

	r := runner.NewRunner(newEngine(t, svc),
		runner.WithInputHandler(runner.NewJSONHandler(strings.NewReader("\"all\"\n"), out)),
		runner.WithPlan(runtime.DefaultPlanWith(time.Second, 0)),
	)
	rs, err := r.Run(context.Background(), testutils.Context())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), rs.Generation)
	assert.Equal(t, []domain.Category{domain.CategoryAllocation}, runner.FailedCategories(rs))
	assert.Equal(t, 6, svc.Calls(gateway.EndpointPredict))

	var results, prompts int
	for _, ev := range decodeEvents(t, out.String()) {
		switch ev.Type {
		case runner.EventResult:
			results++
		case runner.EventSystem:
			prompts++
		}
	}
	assert.Equal(t, 2, results)
	assert.Equal(t, 2, prompts)
}

func TestRunner_DependentRetryWithoutAllocation(t *testing.T) {
	svc := testutils.NewScoringService(t)
	svc.Fail(gateway.EndpointPredict, http.StatusInternalServerError)
	out := &bytes.Buffer{}

	r := runner.NewRunner(newEngine(t, svc),
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("performance\n\n"), out)),
		runner.WithPlan(runtime.DefaultPlanWith(time.Second, 0)),
	)
	_, err := r.Run(context.Background(), testutils.Context())
	require.NoError(t, err)
	assert.Contains(t, out.String(), runtime.ErrMissingAllocation.Error())
}

func TestRunner_PipelineFault(t *testing.T) {
	svc := testutils.NewScoringService(t)
	r := runner.NewRunner(newEngine(t, svc),
		runner.WithInputHandler(runner.NewJSONHandler(strings.NewReader(""), &bytes.Buffer{})),
		runner.WithPlan(runtime.Plan{}),
	)
	_, err := r.Run(context.Background(), testutils.Context())

	var fault *domain.PipelineFault
	assert.True(t, errors.As(err, &fault), "got %v", err)
}

// panicOnce panics on the first allocation request, which the sequencer
// turns into a fault of the portfolio step.
type panicOnce struct {
	next gateway.Caller
	once sync.Once
}

func (p *panicOnce) Call(ctx context.Context, endpoint string, payload any, opts ...gateway.CallOption) (any, error) {
	fire := false
	if endpoint == gateway.EndpointPredict {
		p.once.Do(func() { fire = true })
	}
	if fire {
		panic("model not loaded")
	}
	return p.next.Call(ctx, endpoint, payload, opts...)
}

func TestRunner_PipelineFaultRetry(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "Retry Whole Run", input: "retry\n"},
		{name: "Give Up", input: "\n", wantErr: true},
		{name: "Input Ends", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testutils.NewScoringService(t)
			fake := clock.NewFake()
			caller := &panicOnce{next: gateway.New(svc.URL, gateway.WithClock(fake))}
			e := runtime.NewEngine(caller, runtime.WithClock(fake), runtime.WithSessionID("cli"))
			t.Cleanup(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = e.Close(ctx)
			})

			var out bytes.Buffer
			r := runner.NewRunner(e, runner.WithInputHandler(runner.NewTextHandler(strings.NewReader(tt.input), &out)))
			rs, err := r.Run(context.Background(), testutils.Context())

			assert.Contains(t, out.String(), "Enter 'retry' to run it again")
			assert.Contains(t, out.String(), "panic: model not loaded")
			if tt.wantErr {
				var fault *domain.PipelineFault
				require.ErrorAs(t, err, &fault)
				assert.Equal(t, "portfolio", fault.Step)
				assert.Zero(t, svc.Calls(gateway.EndpointPredict))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(2), rs.Generation)
			for _, c := range domain.Categories() {
				assert.Equal(t, domain.StatusSuccess, rs.Task(c).Status, "category %s", c)
			}
			assert.Equal(t, 1, svc.Calls(gateway.EndpointPredict))
		})
	}
}
