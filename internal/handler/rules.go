// Package handler implements the per-event-type state machines invoked by
// the dispatcher. Each handler is idempotent and gates its side effects on
// an eligibility check performed before any outbound call.
package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	gh "github.com/google/go-github/v81/github"
)

// Decision is one deployment rule's verdict.
type Decision int

const (
	// Abstain passes the decision to the next rule in the chain.
	Abstain Decision = iota
	// Approve allows the deployment; evaluation stops.
	Approve
	// Reject blocks the deployment; evaluation stops.
	Reject
)

// DeploymentRule is one link in the ordered rule chain evaluated for a
// waiting deployment. The first non-abstaining rule wins.
type DeploymentRule interface {
	Name() string
	Evaluate(ctx context.Context, event *gh.DeploymentStatusEvent) Decision
}

// HolidayProvider answers whether a date is a public holiday. The lookup
// itself is an external collaborator.
type HolidayProvider interface {
	IsHoliday(date time.Time) (bool, error)
}

// NotOnHolidayRule rejects deployments on public holidays and otherwise
// abstains.
type NotOnHolidayRule struct {
	Provider HolidayProvider
	Clock    func() time.Time
	Logger   *slog.Logger
}

// Name implements DeploymentRule.
func (r *NotOnHolidayRule) Name() string {
	return "not-on-holiday"
}

// Evaluate implements DeploymentRule.
func (r *NotOnHolidayRule) Evaluate(ctx context.Context, _ *gh.DeploymentStatusEvent) Decision {
	if r.Provider == nil {
		return Abstain
	}
	holiday, err := r.Provider.IsHoliday(r.now())
	if err != nil {
		// An unavailable calendar should not block deployments.
		r.Logger.WarnContext(ctx, "failed to query holiday calendar", "error", err)
		return Abstain
	}
	if holiday {
		return Reject
	}
	return Abstain
}

func (r *NotOnHolidayRule) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// DeployDaysRule approves deployments on the configured weekdays and
// rejects them otherwise. With no configured days it abstains.
type DeployDaysRule struct {
	Days  map[time.Weekday]struct{}
	Clock func() time.Time
}

// NewDeployDaysRule builds a rule from weekday names. Unrecognized names
// are ignored.
func NewDeployDaysRule(days []string) *DeployDaysRule {
	names := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	allowed := make(map[time.Weekday]struct{}, len(days))
	for _, day := range days {
		if weekday, ok := names[strings.ToLower(strings.TrimSpace(day))]; ok {
			allowed[weekday] = struct{}{}
		}
	}
	return &DeployDaysRule{Days: allowed}
}

// Name implements DeploymentRule.
func (r *DeployDaysRule) Name() string {
	return "deploy-days"
}

// Evaluate implements DeploymentRule.
func (r *DeployDaysRule) Evaluate(context.Context, *gh.DeploymentStatusEvent) Decision {
	if len(r.Days) == 0 {
		return Abstain
	}
	now := time.Now()
	if r.Clock != nil {
		now = r.Clock()
	}
	if _, ok := r.Days[now.Weekday()]; ok {
		return Approve
	}
	return Reject
}
