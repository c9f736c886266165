package advisor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/langdetect"
	"github.com/garyellow/ut-course-advisor/internal/logger"
	"github.com/garyellow/ut-course-advisor/internal/metrics"
	"github.com/garyellow/ut-course-advisor/internal/pipeline"
	"github.com/garyellow/ut-course-advisor/internal/session"
)

type fakeRecommender struct {
	mu      sync.Mutex
	status  pipeline.Status
	err     error
	queries []pipeline.Query
}

func (r *fakeRecommender) Run(ctx context.Context, q pipeline.Query) (*pipeline.Result, error) {
	r.mu.Lock()
	r.queries = append(r.queries, q)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &pipeline.Result{Status: pipeline.StatusReady, Locale: q.Locale, Instruction: "SYSTEM " + string(q.Locale)}
	if r.status == pipeline.StatusEmpty {
		res = &pipeline.Result{Status: pipeline.StatusEmpty, Stage: pipeline.StageFilter, Locale: q.Locale}
	}
	return res, nil
}

func (r *fakeRecommender) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

type chatCall struct {
	system  string
	history []genai.Message
}

type fakeChat struct {
	mu     sync.Mutex
	answer string
	err    error
	calls  []chatCall
}

func (c *fakeChat) record(system string, history []genai.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, chatCall{system: system, history: append([]genai.Message(nil), history...)})
}

func (c *fakeChat) Complete(_ context.Context, system string, history []genai.Message) (string, error) {
	c.record(system, history)
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *fakeChat) Stream(_ context.Context, system string, history []genai.Message, onDelta func(string) error) (string, error) {
	c.record(system, history)
	if c.err != nil {
		return "", c.err
	}
	var sb strings.Builder
	for _, part := range strings.SplitAfter(c.answer, " ") {
		sb.WriteString(part)
		if err := onDelta(part); err != nil {
			return sb.String(), err
		}
	}
	return sb.String(), nil
}

type reported struct {
	mu   sync.Mutex
	tags []map[string]string
}

func (r *reported) report(_ context.Context, _ error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tags)
}

func (r *reported) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tags)
}

type fixture struct {
	rec      *fakeRecommender
	chat     *fakeChat
	sessions *session.Store
	reports  *reported
	metrics  *metrics.Metrics
	ctrl     *Controller
}

func newFixture(t *testing.T, withChat bool) *fixture {
	t.Helper()
	f := &fixture{
		rec:      &fakeRecommender{},
		chat:     &fakeChat{answer: "LTAT.02.002 – Masinõpe – 6 EAP – sobib hästi."},
		sessions: session.NewStore(session.Config{}),
		reports:  &reported{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	t.Cleanup(f.sessions.Stop)

	opts := Options{
		Recommender: f.rec,
		Sessions:    f.sessions,
		Metrics:     f.metrics,
		Logger:      logger.NewWithWriter("error", io.Discard),
		Reporter:    f.reports.report,
	}
	if withChat {
		opts.Chat = f.chat
	}
	ctrl, err := New(opts)
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

func (f *fixture) history(t *testing.T, id string) []genai.Message {
	t.Helper()
	h, err := f.sessions.History(id)
	require.NoError(t, err)
	return h
}

func TestTurn_AnswersAndRecordsHistory(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	id := f.sessions.Create()

	reply, err := f.ctrl.Turn(context.Background(), id, Request{Text: "soovin õppida masinõpet"})
	require.NoError(t, err)
	assert.Equal(t, StatusAnswered, reply.Status)
	assert.Equal(t, langdetect.Estonian, reply.Locale)
	assert.Equal(t, f.chat.answer, reply.Content)
	assert.Equal(t, id, reply.SessionID)

	require.Len(t, f.chat.calls, 1)
	assert.Equal(t, "SYSTEM et", f.chat.calls[0].system)
	assert.Equal(t, []genai.Message{{Role: genai.RoleUser, Content: "soovin õppida masinõpet"}}, f.chat.calls[0].history)

	assert.Equal(t, []genai.Message{
		{Role: genai.RoleUser, Content: "soovin õppida masinõpet"},
		{Role: genai.RoleAssistant, Content: f.chat.answer},
	}, f.history(t, id))

	_, err = f.ctrl.Turn(context.Background(), id, Request{Text: "I want to find something easier"})
	require.NoError(t, err)
	require.Len(t, f.chat.calls, 2)
	assert.Len(t, f.chat.calls[1].history, 3, "prior turns follow the system instruction")
	assert.Equal(t, "SYSTEM en", f.chat.calls[1].system)
	assert.Len(t, f.history(t, id), 4)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TurnsTotal.WithLabelValues("answered")))
}

func TestTurn_NoMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"Estonian", "soovin õppida kunsti", "Sobivaid kursusi ei leitud praeguste filtritega."},
		{"English", "I want to find art courses", "No courses matched the current filters."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, true)
			f.rec.status = pipeline.StatusEmpty
			id := f.sessions.Create()

			reply, err := f.ctrl.Turn(context.Background(), id, Request{Text: tt.text})
			require.NoError(t, err)
			assert.Equal(t, StatusNoMatch, reply.Status)
			assert.Equal(t, tt.want, reply.Content)
			assert.Empty(t, f.chat.calls, "chat model must not be called")
			assert.Equal(t, []genai.Message{
				{Role: genai.RoleUser, Content: tt.text},
				{Role: genai.RoleAssistant, Content: tt.want},
			}, f.history(t, id))
		})
	}
}

func TestTurn_FailuresLeaveHistoryUntouched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		recErr   error
		chatErr  error
		noChat   bool
		text     string
		wantIs   error
		wantMsg  string
		reported bool
		outcome  string
	}{
		{
			name:     "data unavailable",
			recErr:   domerrors.NewDataError("data/embeddings.bin", errors.New("no such file")),
			text:     "soovin õppida programmeerimist",
			wantIs:   domerrors.ErrDataUnavailable,
			wantMsg:  "Kursuste andmed pole laaditud. Käivita esmalt embeddingute koostaja (cmd/embed).",
			reported: true,
			outcome:  "data_unavailable",
		},
		{
			name:     "count mismatch",
			recErr:   &domerrors.ConsistencyError{Records: 3, Embeddings: 4},
			text:     "soovin õppida programmeerimist",
			wantIs:   domerrors.ErrConsistency,
			wantMsg:  "Embeddingute (4) ja andmestiku (3) ridade arv ei klapi. Käivita embeddingute koostaja uuesti.",
			reported: true,
			outcome:  "data_unavailable",
		},
		{
			name:     "model unavailable",
			recErr:   domerrors.NewModelError("embedding", "init", errors.New("connection refused")),
			text:     "I want to find a course",
			wantIs:   domerrors.ErrModelUnavailable,
			wantMsg:  "The search model is unavailable right now. Please try again later.",
			reported: true,
			outcome:  "model_unavailable",
		},
		{
			name:    "invalid filters",
			recErr:  domerrors.NewValidationError("credits", "min 6 is greater than max 3"),
			text:    "I want to find a course",
			wantIs:  domerrors.ErrInvalidInput,
			wantMsg: "Invalid request: min 6 is greater than max 3",
			outcome: "invalid",
		},
		{
			name:     "chat failure",
			chatErr:  errors.New("upstream 500"),
			text:     "I want to find a course",
			wantIs:   errChatFailed,
			wantMsg:  "Composing the answer failed. Please try again.",
			reported: true,
			outcome:  "llm_error",
		},
		{
			name:     "chat not configured",
			noChat:   true,
			text:     "I want to find a course",
			wantIs:   domerrors.ErrModelUnavailable,
			wantMsg:  "No language model API key is configured.",
			reported: true,
			outcome:  "model_unavailable",
		},
		{
			name:     "unexpected",
			recErr:   errors.New("index out of range"),
			text:     "I want to find a course",
			wantMsg:  "Something went wrong. Please try again.",
			reported: true,
			outcome:  "error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, !tt.noChat)
			id := f.sessions.Create()

			// One successful turn first so there is history to protect.
			f.rec.status = pipeline.StatusEmpty
			_, err := f.ctrl.Turn(context.Background(), id, Request{Text: "tere"})
			require.NoError(t, err)
			before := f.history(t, id)
			require.Len(t, before, 2)

			f.rec.status = pipeline.StatusReady
			f.rec.err = tt.recErr
			f.chat.err = tt.chatErr
			_, err = f.ctrl.Turn(context.Background(), id, Request{Text: tt.text})
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.Equal(t, tt.wantMsg, domerrors.GetUserMessage(err))
			assert.Equal(t, before, f.history(t, id))

			wantReports := 0
			if tt.reported {
				wantReports = 1
			}
			assert.Equal(t, wantReports, f.reports.count())
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TurnsTotal.WithLabelValues(tt.outcome)))

			// The session is usable again after a failure.
			f.rec.status, f.rec.err, f.chat.err = pipeline.StatusEmpty, nil, nil
			_, err = f.ctrl.Turn(context.Background(), id, Request{Text: "tere"})
			assert.NoError(t, err)
		})
	}
}

func TestTurn_Timeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	id := f.sessions.Create()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := f.ctrl.Turn(ctx, id, Request{Text: "I want to find a course"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domerrors.ErrTimeout)
	assert.Equal(t, "Composing the answer took too long. Please try again.", domerrors.GetUserMessage(err))
	assert.Zero(t, f.reports.count(), "timeouts are not reported as errors")
	assert.Empty(t, f.history(t, id))
}

func TestTurn_SessionErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	_, err := f.ctrl.Turn(context.Background(), "missing", Request{Text: "tere"})
	assert.ErrorIs(t, err, domerrors.ErrSessionNotFound)

	id := f.sessions.Create()
	lease, err := f.sessions.Acquire(id)
	require.NoError(t, err)
	defer lease.Release()

	_, err = f.ctrl.Turn(context.Background(), id, Request{Text: "tere"})
	assert.ErrorIs(t, err, domerrors.ErrSessionBusy)
	assert.Zero(t, f.rec.calls(), "busy sessions must not reach the pipeline")
}

func TestTurn_InvalidLocale(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	id := f.sessions.Create()

	_, err := f.ctrl.Turn(context.Background(), id, Request{Text: "tere", Locale: "fi"})
	assert.ErrorIs(t, err, domerrors.ErrInvalidInput)
	assert.Zero(t, f.rec.calls())

	reply, err := f.ctrl.Turn(context.Background(), id, Request{Text: "I want to find a course", Locale: "Eesti"})
	require.NoError(t, err)
	assert.Equal(t, langdetect.Estonian, reply.Locale)
}

func TestTurnStream(t *testing.T) {
	t.Parallel()

	t.Run("delivers deltas", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, true)
		id := f.sessions.Create()

		var parts []string
		reply, err := f.ctrl.TurnStream(context.Background(), id, Request{Text: "I want to find a course"}, func(s string) error {
			parts = append(parts, s)
			return nil
		})
		require.NoError(t, err)
		assert.Greater(t, len(parts), 1)
		assert.Equal(t, reply.Content, strings.Join(parts, ""))
		assert.Len(t, f.history(t, id), 2)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LLMRequestsTotal.WithLabelValues("stream", "success")))
	})

	t.Run("aborted stream keeps history", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, true)
		id := f.sessions.Create()

		_, err := f.ctrl.TurnStream(context.Background(), id, Request{Text: "I want to find a course"}, func(string) error {
			return errors.New("client went away")
		})
		require.Error(t, err)
		assert.Empty(t, f.history(t, id))
	})

	t.Run("no match is streamed once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, true)
		f.rec.status = pipeline.StatusEmpty
		id := f.sessions.Create()

		var parts []string
		_, err := f.ctrl.TurnStream(context.Background(), id, Request{Text: "I want to find a course"}, func(s string) error {
			parts = append(parts, s)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"No courses matched the current filters."}, parts)
	})
}

func TestRecommend(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	res, err := f.ctrl.Recommend(context.Background(), Request{Text: "soovin õppida", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, langdetect.Estonian, res.Locale)
	require.Len(t, f.rec.queries, 1)
	assert.Equal(t, 3, f.rec.queries[0].TopK)

	f.rec.err = domerrors.NewDataError("catalog.csv", errors.New("missing"))
	_, err = f.ctrl.Recommend(context.Background(), Request{Text: "I want to find a course"})
	assert.ErrorIs(t, err, domerrors.ErrDataUnavailable)
	assert.Equal(t, "Course data is not loaded. Run the embedding builder (cmd/embed) first.", domerrors.GetUserMessage(err))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Recommender: &fakeRecommender{}})
	assert.Error(t, err)
}
