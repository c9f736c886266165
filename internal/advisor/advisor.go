// Package advisor runs conversation turns: it recommends courses for the
// user's message, asks the chat model to answer from them and records the
// exchange in the session history.
//
// A failed turn never touches the history, so the user can simply retry.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyellow/ut-course-advisor/internal/ctxutil"
	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/filter"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/langdetect"
	"github.com/garyellow/ut-course-advisor/internal/logger"
	"github.com/garyellow/ut-course-advisor/internal/metrics"
	"github.com/garyellow/ut-course-advisor/internal/pipeline"
	"github.com/garyellow/ut-course-advisor/internal/sentry"
	"github.com/garyellow/ut-course-advisor/internal/session"
)

var (
	errChatUnavailable = errors.New("chat model not configured")
	errChatFailed      = errors.New("chat completion failed")
)

// Recommender produces the ranked courses and instruction for a query.
type Recommender interface {
	Run(ctx context.Context, q pipeline.Query) (*pipeline.Result, error)
}

// ChatModel answers a conversation under a system instruction.
type ChatModel interface {
	Complete(ctx context.Context, system string, history []genai.Message) (string, error)
	Stream(ctx context.Context, system string, history []genai.Message, onDelta func(string) error) (string, error)
}

// Reporter forwards unexpected failures to error tracking.
type Reporter func(ctx context.Context, err error, tags map[string]string)

// Status tells how a successful turn was answered.
type Status string

// Turn statuses.
const (
	StatusAnswered Status = "answered"
	StatusNoMatch  Status = "no_match"
)

// Request is the user's side of a turn.
type Request struct {
	Text    string            `json:"text"`
	Filters filter.Spec       `json:"filters"`
	TopK    int               `json:"top_k,omitempty"`
	Locale  langdetect.Locale `json:"locale,omitempty"`
}

// Reply is the outcome of a successful turn.
type Reply struct {
	SessionID string
	Status    Status
	Locale    langdetect.Locale
	Content   string
	Result    *pipeline.Result
}

// Options wires a Controller.
type Options struct {
	Recommender Recommender
	Chat        ChatModel // nil when no chat model is configured
	Sessions    *session.Store
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
	Reporter    Reporter // defaults to Sentry
}

// Controller is safe for concurrent use; turns on the same session are
// serialized by the session store.
type Controller struct {
	recommender Recommender
	chat        ChatModel
	sessions    *session.Store
	metrics     *metrics.Metrics
	log         *logger.Logger
	report      Reporter
	wrap        *domerrors.ErrorWrapper
}

// New creates a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Recommender == nil {
		return nil, errors.New("advisor: recommender is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("advisor: session store is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.New("info")
	}
	report := opts.Reporter
	if report == nil {
		report = sentry.CaptureException
	}
	return &Controller{
		recommender: opts.Recommender,
		chat:        opts.Chat,
		sessions:    opts.Sessions,
		metrics:     opts.Metrics,
		log:         log.WithModule("advisor"),
		report:      report,
		wrap:        domerrors.NewWrapper("advisor", "turn"),
	}, nil
}

// Recommend runs the pipeline without the chat model or a session. Errors
// carry a localized message for errors.GetUserMessage.
func (c *Controller) Recommend(ctx context.Context, req Request) (*pipeline.Result, error) {
	wrap := domerrors.NewWrapper("advisor", "recommend")
	locale, err := resolveLocale(req)
	if err != nil {
		return nil, wrap.Wrap(err, messagesFor(langdetect.Detect(req.Text)).userMessage(err))
	}
	res, err := c.recommender.Run(ctx, query(req, locale))
	if err != nil {
		var outcome string
		outcome, err = classify(ctx, err)
		c.fail(ctx, err, outcome, "recommend")
		return nil, wrap.Wrap(err, messagesFor(locale).userMessage(err))
	}
	return res, nil
}

// Turn answers one user message in the session.
//
// It fails with errors.ErrSessionNotFound or errors.ErrSessionBusy before
// doing any work. Other failures are wrapped with a localized message for
// errors.GetUserMessage and leave the history unchanged.
func (c *Controller) Turn(ctx context.Context, sessionID string, req Request) (*Reply, error) {
	return c.turn(ctx, sessionID, req, nil)
}

// TurnStream is Turn with the answer delivered incrementally to onDelta.
// Returning an error from onDelta aborts the turn.
func (c *Controller) TurnStream(ctx context.Context, sessionID string, req Request, onDelta func(string) error) (*Reply, error) {
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	return c.turn(ctx, sessionID, req, onDelta)
}

func (c *Controller) turn(ctx context.Context, sessionID string, req Request, onDelta func(string) error) (*Reply, error) {
	lease, err := c.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	ctx = ctxutil.WithSessionID(ctx, sessionID)
	locale, err := resolveLocale(req)
	if err != nil {
		return nil, c.wrap.Wrap(err, messagesFor(langdetect.Detect(req.Text)).userMessage(err))
	}
	msgs := messagesFor(locale)

	res, err := c.recommender.Run(ctx, query(req, locale))
	if err != nil {
		var outcome string
		outcome, err = classify(ctx, err)
		c.fail(ctx, err, outcome, "recommend")
		return nil, c.wrap.Wrap(err, msgs.userMessage(err))
	}

	userMsg := genai.Message{Role: genai.RoleUser, Content: req.Text}
	reply := &Reply{SessionID: sessionID, Locale: res.Locale, Result: res}

	if res.Status == pipeline.StatusEmpty {
		reply.Status = StatusNoMatch
		reply.Content = messagesFor(res.Locale).NoMatch
		if onDelta != nil {
			if err := onDelta(reply.Content); err != nil {
				return nil, c.wrap.Wrap(err, msgs.Generic)
			}
		}
		lease.Commit(userMsg, genai.Message{Role: genai.RoleAssistant, Content: reply.Content})
		c.metrics.RecordTurn("no_match")
		return reply, nil
	}

	if c.chat == nil {
		err := domerrors.NewModelError("chat", "init", errChatUnavailable)
		c.fail(ctx, err, "model_unavailable", "chat")
		return nil, c.wrap.Wrap(err, msgs.userMessage(err))
	}

	history := append(lease.History(), userMsg)
	mode := "complete"
	start := time.Now()
	var content string
	if onDelta != nil {
		mode = "stream"
		content, err = c.chat.Stream(ctx, res.Instruction, history, onDelta)
	} else {
		content, err = c.chat.Complete(ctx, res.Instruction, history)
	}
	c.metrics.RecordLLM(mode, time.Since(start), err)
	if err != nil {
		var outcome string
		outcome, err = classify(ctx, err)
		if outcome == "error" {
			outcome, err = "llm_error", fmt.Errorf("%w: %w", errChatFailed, err)
		}
		c.fail(ctx, err, outcome, "chat")
		return nil, c.wrap.Wrap(err, msgs.userMessage(err))
	}

	reply.Status = StatusAnswered
	reply.Content = content
	lease.Commit(userMsg, genai.Message{Role: genai.RoleAssistant, Content: content})
	c.metrics.RecordTurn("answered")
	c.log.WithField("session_id", sessionID).
		WithField("ranked", len(res.Ranked)).
		WithField("locale", string(res.Locale)).
		Debug("Turn answered")
	return reply, nil
}

func (c *Controller) fail(ctx context.Context, err error, outcome, stage string) {
	c.metrics.RecordTurn(outcome)
	entry := c.log.WithError(err).WithField("outcome", outcome).WithField("stage", stage)
	if id := ctxutil.GetSessionID(ctx); id != "" {
		entry = entry.WithField("session_id", id)
	}
	switch outcome {
	case "invalid", "canceled":
		entry.Debug("Turn rejected")
		return
	case "timeout":
		entry.Warn("Turn timed out")
		return
	}
	entry.Error("Turn failed")
	c.report(ctx, err, map[string]string{"outcome": outcome, "stage": stage})
}

// classify maps a failure to a metrics outcome, turning deadline errors into
// errors.ErrTimeout.
func classify(ctx context.Context, err error) (string, error) {
	switch {
	case errors.Is(err, domerrors.ErrInvalidInput):
		return "invalid", err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout", fmt.Errorf("%w: %w", domerrors.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return "canceled", err
	case errors.Is(err, domerrors.ErrDataUnavailable), errors.Is(err, domerrors.ErrConsistency):
		return "data_unavailable", err
	case errors.Is(err, domerrors.ErrModelUnavailable):
		return "model_unavailable", err
	default:
		return "error", err
	}
}

// resolveLocale validates an explicit locale or detects one from the text.
func resolveLocale(req Request) (langdetect.Locale, error) {
	if req.Locale == "" {
		return langdetect.Detect(req.Text), nil
	}
	locale, err := langdetect.ParseLocale(string(req.Locale))
	if err != nil {
		return "", domerrors.NewValidationError("locale", err.Error())
	}
	return locale, nil
}

func query(req Request, locale langdetect.Locale) pipeline.Query {
	return pipeline.Query{Text: req.Text, Filters: req.Filters, TopK: req.TopK, Locale: locale}
}
