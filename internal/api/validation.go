package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/schedule"
)

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, _, err := schedule.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	validate.RegisterValidation("backup_type", func(fl validator.FieldLevel) bool {
		_, err := backup.ParseBackupType(fl.Field().String())
		return err == nil
	})
	validate.RegisterValidation("backup_status", func(fl validator.FieldLevel) bool {
		_, err := backup.ParseStatus(fl.Field().String())
		return err == nil
	})
	validate.RegisterValidation("frequency", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseFrequency(fl.Field().String())
		return err == nil
	})
}

// validateRequest runs the struct tags and returns a validation AppError listing every field
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid request", err)
	}

	var errs apperrors.ValidationErrors
	for _, fe := range fieldErrs {
		errs.Add(fe.Field(), describe(fe), fe.Value())
	}
	return apperrors.NewValidationError("invalid request", errs)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "hhmm":
		return "must be a time of day formatted HH:MM"
	case "backup_type":
		return "must be one of COMPLETE, INCREMENTAL, DIFFERENTIAL, SNAPSHOT"
	case "backup_status":
		return "must be one of PENDING, SUCCESS, FAILED, VERIFIED, RESTORING, RESTORED"
	case "frequency":
		return "must be one of HOURLY, DAILY, WEEKLY, MONTHLY"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed the %s check", fe.Tag())
	}
}
