package handler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeHolidayProvider struct {
	holiday bool
	err     error
}

func (p *fakeHolidayProvider) IsHoliday(time.Time) (bool, error) {
	return p.holiday, p.err
}

func TestDeployDaysRule(t *testing.T) {
	t.Parallel()

	// 2024-01-01 was a Monday.
	monday := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	saturday := monday.AddDate(0, 0, 5)

	tests := []struct {
		name string
		days []string
		now  time.Time
		want Decision
	}{
		{"allowed weekday", []string{"Monday", "Tuesday"}, monday, Approve},
		{"disallowed weekday", []string{"Monday", "Tuesday"}, saturday, Reject},
		{"no configured days", nil, monday, Abstain},
		{"unrecognized names are ignored", []string{"Funday"}, monday, Abstain},
		{"case insensitive", []string{"monday"}, monday, Approve},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rule := NewDeployDaysRule(tc.days)
			rule.Clock = func() time.Time { return tc.now }

			if got := rule.Evaluate(context.Background(), nil); got != tc.want {
				t.Errorf("Evaluate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNotOnHolidayRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider HolidayProvider
		want     Decision
	}{
		{"holiday", &fakeHolidayProvider{holiday: true}, Reject},
		{"working day", &fakeHolidayProvider{holiday: false}, Abstain},
		{"calendar unavailable", &fakeHolidayProvider{err: errors.New("boom")}, Abstain},
		{"no provider", nil, Abstain},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rule := &NotOnHolidayRule{
				Provider: tc.provider,
				Clock:    func() time.Time { return time.Date(2024, 12, 25, 9, 0, 0, 0, time.UTC) },
				Logger:   discardLogger(),
			}

			if got := rule.Evaluate(context.Background(), nil); got != tc.want {
				t.Errorf("Evaluate() = %v, want %v", got, tc.want)
			}
		})
	}
}
