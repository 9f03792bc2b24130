package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

// ErrConfig marks a schedule whose configuration cannot be evaluated.
var ErrConfig = errors.New("invalid schedule configuration")

// ConfigError explains why a schedule was treated as non-matching.
type ConfigError struct {
	ScheduleID int
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("schedule %d: %s", e.ScheduleID, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

var validate = validator.New()

// Validate checks the struct tags on model.Schedule plus the rules that
// span several fields.
func Validate(s *model.Schedule) error {
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return &ConfigError{ScheduleID: s.ID, Reason: strings.Join(parts, "; ")}
		}
		return &ConfigError{ScheduleID: s.ID, Reason: err.Error()}
	}
	if (s.StartTime == nil) != (s.EndTime == nil) {
		return &ConfigError{ScheduleID: s.ID, Reason: "daily window needs both start_time and end_time"}
	}
	if s.StartTime != nil && (*s.StartTime < 0 || *s.EndTime < 0 ||
		*s.StartTime >= model.NewTimeOfDay(24, 0, 0) || *s.EndTime >= model.NewTimeOfDay(24, 0, 0)) {
		return &ConfigError{ScheduleID: s.ID, Reason: "daily window out of range"}
	}
	return nil
}
