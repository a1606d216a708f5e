package schedule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

const cronFields = 5

var (
	fieldRegex = regexp.MustCompile(`^[0-9*,/-]+$`)

	// Standard five-field parser. Descriptors such as @daily are not enabled.
	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// ValidateCron accepts five whitespace-separated fields (minute, hour,
// day of month, month, day of week) built from digits and * , / -.
//
//	ValidateCron("0 6 * * 1,2,3,4,5") // nil
//	ValidateCron("@daily")            // ErrInvalidCron
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != cronFields {
		return fmt.Errorf("%w: %q: expected %d fields, got %d", ErrInvalidCron, expr, cronFields, len(fields))
	}
	for i, f := range fields {
		if !fieldRegex.MatchString(f) {
			return fmt.Errorf("%w: %q: field %d %q has invalid characters", ErrInvalidCron, expr, i+1, f)
		}
	}
	if _, err := cronParser.Parse(strings.Join(fields, " ")); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidCron, expr, err)
	}
	return nil
}
