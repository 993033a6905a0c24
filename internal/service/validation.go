package service

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

// NewValidator returns a validator with the scheduling tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("day_of_week", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseDayOfWeek(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := models.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("lesson_type", func(fl validator.FieldLevel) bool {
		return models.LessonType(fl.Field().String()).Valid()
	})
	return v
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
