package util

import (
	"fmt"
	"strconv"
)

// ParseSnowflake converts a Discord snowflake string into its numeric form.
// Snowflakes are never zero, so a zero result always accompanies an error.
func ParseSnowflake(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty snowflake")
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snowflake %q: %w", s, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("zero snowflake")
	}
	return id, nil
}

// FormatSnowflake converts a numeric snowflake back into its wire string form.
func FormatSnowflake(id uint64) string {
	return strconv.FormatUint(id, 10)
}
