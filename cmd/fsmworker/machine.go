package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

type status = statemachine.StringState

const (
	Draft     status = "draft"
	Submitted status = "submitted"
	Checking  status = "checking"
	Approved  status = "approved"
	Published status = "published"
	Rejected  status = "rejected"
	Archived  status = "archived"
)

const statusField = "status"

type reviewMachine = statemachine.Machine[*Document, status]

// reviewPolicy holds the editorial rules applied by the side effects.
type reviewPolicy struct {
	MinBodyLength int `env:"REVIEW_MIN_BODY_LENGTH" envDefault:"20"`
}

var statusLabels = map[status]string{
	Draft:     "Draft",
	Submitted: "Submitted",
	Checking:  "In review",
	Approved:  "Approved",
	Published: "Published",
	Rejected:  "Rejected",
	Archived:  "Archived",
}

// newReviewMachine declares the editorial workflow:
//
//	draft -submit-> submitted -start_review-> checking -check-> approved -publish-> published
//	                                              \-reject(reason)-> rejected
//	published, rejected -archive-> archived
//
// Entering review schedules the rest of the workflow. A failed check
// redirects to rejected with the reason.
func newReviewMachine(policy reviewPolicy, opts ...statemachine.Option) (*reviewMachine, error) {
	field := statemachine.Field[*Document, status]{
		Name: statusField,
		Get:  func(d *Document) status { return d.Status },
		Set:  func(d *Document, s status) { d.Status = s },
	}

	opts = append([]statemachine.Option{statemachine.WithStateLabels(statusLabels)}, opts...)

	r := &reviewer{}
	m, err := statemachine.NewBuilder[*Document, status]().
		From(Draft).To(Submitted).Via("submit", submit).Guard(hasTitle).Add().
		From(Submitted).To(Checking).Via("start_review", r.startReview).Add().
		From(Checking).To(Approved).Via("check", policy.check).Add().
		From(Checking).To(Rejected).Via("reject", reject).Params("reason").Add().
		From(Approved).To(Published).Via("publish", publish).Add().
		From(Published).To(Archived).Via("archive", nil).Add().
		From(Rejected).To(Archived).Via("archive", nil).Add().
		Build(field, Draft, opts...)
	if err != nil {
		return nil, err
	}
	r.machine = m
	return m, nil
}

// reviewer schedules the automated part of the review from inside the hop
// into checking. The task is enqueued through the locking transaction, so it
// exists exactly when the status change commits.
type reviewer struct {
	machine *reviewMachine
}

func (r *reviewer) startReview(ctx context.Context, d *Document, _ statemachine.Transition[*Document, status], _ statemachine.Args) statemachine.Result {
	if _, err := r.machine.ScheduleTransitionThrough(ctx, d, Published); err != nil {
		return statemachine.Fail(err)
	}
	return statemachine.Ok()
}

func hasTitle(_ context.Context, d *Document) bool {
	return strings.TrimSpace(d.Title) != ""
}

func submit(_ context.Context, d *Document, _ statemachine.Transition[*Document, status], _ statemachine.Args) statemachine.Result {
	d.Revision++
	d.Reason = ""
	return statemachine.Ok()
}

func (p reviewPolicy) check(_ context.Context, d *Document, _ statemachine.Transition[*Document, status], _ statemachine.Args) statemachine.Result {
	if n := len(strings.TrimSpace(d.Body)); n < p.MinBodyLength {
		return statemachine.Redirect(Rejected, statemachine.Args{
			"reason": fmt.Sprintf("body has %d characters, at least %d required", n, p.MinBodyLength),
		})
	}
	return statemachine.Ok()
}

func reject(_ context.Context, d *Document, _ statemachine.Transition[*Document, status], args statemachine.Args) statemachine.Result {
	reason, ok := args["reason"].(string)
	if !ok {
		return statemachine.Fail(fmt.Errorf("reject: reason must be a string, got %T", args["reason"]))
	}
	d.Reason = reason
	return statemachine.Ok()
}

func publish(_ context.Context, d *Document, _ statemachine.Transition[*Document, status], _ statemachine.Args) statemachine.Result {
	now := time.Now().UTC()
	d.PublishedAt = &now
	return statemachine.Ok()
}
