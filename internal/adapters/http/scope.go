package httpadapter

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
)

// parseScope reads the shared filter parameters used by listings, counts
// and exports. A named preset wins over explicit from/to bounds.
func parseScope(query url.Values, now time.Time) (domain.ScopeFilter, error) {
	scope := domain.ScopeFilter{
		DateField: domain.DateField(query.Get("date_field")),
		Location:  query.Get("location"),
		DoctorID:  query.Get("doctor_id"),
	}

	if preset := query.Get("preset"); preset != "" {
		from, to, err := resolvePreset(preset, now.UTC())
		if err != nil {
			return scope, err
		}
		scope.From = &from
		scope.To = &to
		return scope, nil
	}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return scope, domain.WrapError(domain.ErrInvalidInput, "parse scope",
				fmt.Errorf("invalid from timestamp %q", raw))
		}
		scope.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return scope, domain.WrapError(domain.ErrInvalidInput, "parse scope",
				fmt.Errorf("invalid to timestamp %q", raw))
		}
		scope.To = &to
	}
	return scope, nil
}

func resolvePreset(preset string, now time.Time) (time.Time, time.Time, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch preset {
	case "last24h":
		return now.Add(-24 * time.Hour), now, nil
	case "today":
		return midnight, now, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), midnight, nil
	case "thisWeek":
		// Monday-based week start.
		offset := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset), now, nil
	case "thisMonth":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), now, nil
	default:
		return time.Time{}, time.Time{}, domain.WrapError(domain.ErrInvalidInput, "parse scope",
			fmt.Errorf("unknown date preset %q", preset))
	}
}

func parsePage(query url.Values) domain.Page {
	var page domain.Page
	if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page.Limit = n
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page.Offset = n
		}
	}
	return page
}
