package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	dateOnlyLayout  = "2006-01-02"
	monthOnlyLayout = "2006-01"
)

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

// parseSnowflakeIDs fails on the first value that is not a valid id.
func parseSnowflakeIDs(values []string) ([]snowflake.ID, error) {
	out := make([]snowflake.ID, 0, len(values))
	for _, value := range values {
		id, err := parseOptionalSnowflakeID(value)
		if err != nil || id == nil {
			return nil, errors.New("invalid_snowflake_id")
		}
		out = append(out, *id)
	}
	return out, nil
}

func pathID(c *gin.Context) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		return 0, newValidationError("id", "invalid_id", "invalid id")
	}
	return *id, nil
}

func queryID(c *gin.Context, key string) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Query(key))
	if err != nil {
		return 0, newValidationError(key, "invalid_"+key, "invalid "+key)
	}
	if id == nil {
		return 0, nil
	}
	return *id, nil
}

// parseOptionalTime accepts RFC3339, a calendar date or a year-month. Dates
// expand to the start or end of the day or month.
func parseOptionalTime(value string, endOfPeriod bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfPeriod {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	if parsed, err := time.Parse(monthOnlyLayout, trimmed); err == nil {
		if endOfPeriod {
			parsed = parsed.AddDate(0, 1, 0).Add(-time.Nanosecond)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}
