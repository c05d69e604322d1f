package impersonate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cubbscratchstudios/splat/internal/metrics"
)

// StepKind names a sub-step of a post.
type StepKind string

const (
	StepReplyPreview StepKind = "reply_preview"
	StepBody         StepKind = "body"
	StepAttachment   StepKind = "attachment"
)

// StepStatus is the result of one sub-step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Skip reasons.
const (
	ReasonEmptyBody  = "empty body"
	ReasonBodyFailed = "body not posted"
	ReasonCancelled  = "cancelled"
)

// Outcome summarizes a post.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
)

// Step records one sub-step. Index is the attachment position for attachment steps.
type Step struct {
	Kind   StepKind   `json:"kind"`
	Index  int        `json:"index"`
	Status StepStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
	RefID  string     `json:"ref_id,omitempty"`
}

func (s Step) done() bool {
	return s.Status == StepSucceeded || (s.Status == StepSkipped && s.Reason == ReasonEmptyBody)
}

// PostOutcome lists every planned step in posting order.
type PostOutcome struct {
	Steps     []Step `json:"steps"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Status is complete when every step is done, failed when nothing was
// posted, and partial otherwise.
func (o PostOutcome) Status() Outcome {
	posted, pending := 0, 0
	for _, step := range o.Steps {
		switch {
		case step.Status == StepSucceeded:
			posted++
		case !step.done():
			pending++
		}
	}
	switch {
	case pending == 0:
		return OutcomeComplete
	case posted == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// Failed returns the steps a caller may retry through Resume.
func (o PostOutcome) Failed() []Step {
	var out []Step
	for _, step := range o.Steps {
		if !step.done() {
			out = append(out, step)
		}
	}
	return out
}

// Poster performs the multi-step post. It never retries on its own.
type Poster struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPoster(log *slog.Logger, m *metrics.Metrics) *Poster {
	if log == nil {
		log = slog.Default()
	}
	return &Poster{
		logger:  log.With(slog.String("component", "poster")),
		metrics: m,
	}
}

// Post sends the reply preview, then the body, then each attachment.
// Attachments are skipped when the body could not be posted; an empty body
// is skipped and attachments still go out. Once ctx is done, steps not yet
// started are skipped as cancelled.
func (p *Poster) Post(ctx context.Context, r RenderedImpersonation, sink Sink) PostOutcome {
	return p.run(ctx, r, sink, plan(r))
}

// Resume re-runs the steps of prev that did not succeed. Succeeded steps are
// kept as they are.
func (p *Poster) Resume(ctx context.Context, r RenderedImpersonation, sink Sink, prev PostOutcome) PostOutcome {
	if len(prev.Steps) == 0 {
		return p.Post(ctx, r, sink)
	}
	steps := make([]Step, len(prev.Steps))
	copy(steps, prev.Steps)
	return p.run(ctx, r, sink, steps)
}

func plan(r RenderedImpersonation) []Step {
	steps := make([]Step, 0, len(r.DisplayAttachments)+2)
	if r.DisplayReplyPreview != nil {
		steps = append(steps, Step{Kind: StepReplyPreview})
	}
	steps = append(steps, Step{Kind: StepBody})
	for i := range r.DisplayAttachments {
		steps = append(steps, Step{Kind: StepAttachment, Index: i})
	}
	return steps
}

func (p *Poster) run(ctx context.Context, r RenderedImpersonation, sink Sink, steps []Step) PostOutcome {
	outcome := PostOutcome{Steps: steps}
	bodyDone := false
	for i := range steps {
		step := &steps[i]
		if step.Status == StepSucceeded {
			if step.Kind == StepBody {
				bodyDone = true
			}
			continue
		}
		if ctx.Err() != nil {
			outcome.Cancelled = true
			p.finish(step, StepSkipped, ReasonCancelled, "")
			continue
		}

		switch step.Kind {
		case StepReplyPreview:
			if r.DisplayReplyPreview == nil {
				p.finish(step, StepSkipped, "no reply preview", "")
				continue
			}
			ref, err := sendPreview(ctx, sink, *r.DisplayReplyPreview, r.DisplayAuthor)
			p.record(step, ref.ID, err)
		case StepBody:
			if strings.TrimSpace(r.DisplayBody) == "" {
				p.finish(step, StepSkipped, ReasonEmptyBody, "")
				bodyDone = true
				continue
			}
			ref, err := sink.Send(ctx, r.DisplayBody, r.DisplayAuthor)
			p.record(step, ref.ID, err)
			bodyDone = err == nil
		case StepAttachment:
			if !bodyDone {
				p.finish(step, StepSkipped, ReasonBodyFailed, "")
				continue
			}
			if step.Index < 0 || step.Index >= len(r.DisplayAttachments) {
				p.finish(step, StepFailed, "attachment no longer present", "")
				continue
			}
			ref, err := sink.Upload(ctx, r.DisplayAttachments[step.Index], r.DisplayAuthor)
			p.record(step, ref.ID, err)
		}
	}
	// A cancellation during the last sink call leaves no later step to notice it.
	if ctx.Err() != nil {
		outcome.Cancelled = true
	}
	if outcome.Cancelled {
		p.logger.Info("impersonation post cancelled",
			slog.String("source", r.Source.String()),
			slog.Int("pending", len(outcome.Failed())),
		)
	}
	return outcome
}

func sendPreview(ctx context.Context, sink Sink, preview ReplyPreview, author DisplayAuthor) (MessageRef, error) {
	if ps, ok := sink.(PreviewSender); ok {
		return ps.SendPreview(ctx, preview, author)
	}
	return sink.Send(ctx, preview.Quote(), author)
}

func (p *Poster) record(step *Step, refID string, err error) {
	if err != nil {
		p.logger.Warn("impersonation step failed",
			slog.String("step", string(step.Kind)),
			slog.Int("index", step.Index),
			slog.Any("error", err),
		)
		p.finish(step, StepFailed, err.Error(), "")
		return
	}
	p.finish(step, StepSucceeded, "", refID)
}

func (p *Poster) finish(step *Step, status StepStatus, reason, refID string) {
	step.Status = status
	step.Reason = reason
	step.RefID = refID
	p.metrics.ImpersonationStep(string(step.Kind), string(status))
}
