package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultHolidaysURL      = "https://www.gov.uk/bank-holidays.json"
	defaultHolidaysDivision = "england-and-wales"
)

type holidayCalendar struct {
	Events []struct {
		Title string `json:"title"`
		Date  string `json:"date"`
	} `json:"events"`
}

// PublicHolidayProvider answers holiday lookups from the UK government
// bank holiday calendar, caching the parsed calendar between lookups.
type PublicHolidayProvider struct {
	url      string
	division string
	client   *http.Client
	cache    *expirable.LRU[string, map[string]struct{}]
}

// NewPublicHolidayProvider builds a provider. An empty url uses the
// public gov.uk calendar.
func NewPublicHolidayProvider(url string, client *http.Client) *PublicHolidayProvider {
	if strings.TrimSpace(url) == "" {
		url = defaultHolidaysURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PublicHolidayProvider{
		url:      url,
		division: defaultHolidaysDivision,
		client:   client,
		cache:    expirable.NewLRU[string, map[string]struct{}](1, nil, 12*time.Hour),
	}
}

// IsHoliday implements HolidayProvider.
func (p *PublicHolidayProvider) IsHoliday(date time.Time) (bool, error) {
	dates, err := p.holidayDates()
	if err != nil {
		return false, err
	}
	_, ok := dates[date.Format(time.DateOnly)]
	return ok, nil
}

func (p *PublicHolidayProvider) holidayDates() (map[string]struct{}, error) {
	if dates, ok := p.cache.Get(p.division); ok {
		return dates, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build holiday calendar request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holiday calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s from holiday calendar", resp.Status)
	}

	var calendars map[string]holidayCalendar
	if err := json.NewDecoder(resp.Body).Decode(&calendars); err != nil {
		return nil, fmt.Errorf("decode holiday calendar: %w", err)
	}

	calendar, ok := calendars[p.division]
	if !ok {
		return nil, fmt.Errorf("holiday calendar has no division %q", p.division)
	}

	dates := make(map[string]struct{}, len(calendar.Events))
	for _, event := range calendar.Events {
		dates[event.Date] = struct{}{}
	}
	p.cache.Add(p.division, dates)
	return dates, nil
}
