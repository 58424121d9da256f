package booking

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

var fieldMessages = map[string]string{
	"phone10":  "must be a 10-digit number",
	"required": "is required",
}

// ContactValidator checks the contact form in a fixed timezone.
type ContactValidator struct {
	validate *validator.Validate
	loc      *time.Location
}

func NewContactValidator(loc *time.Location) *ContactValidator {
	if loc == nil {
		loc = time.UTC
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &ContactValidator{validate: v, loc: loc}
}

// Validate returns a *ValidationError when c is incomplete, malformed, or
// scheduled on a day before today.
func (cv *ContactValidator) Validate(c ContactInfo, now time.Time) error {
	c.Phone = strings.TrimSpace(c.Phone)
	c.Date = strings.TrimSpace(c.Date)
	c.Time = strings.TrimSpace(c.Time)

	fields := map[string]string{}
	if err := cv.validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			msg, ok := fieldMessages[fe.Tag()]
			if !ok {
				msg = "has an invalid format"
			}
			fields[fe.Field()] = msg
		}
	}

	if _, bad := fields["date"]; !bad {
		day, _ := time.ParseInLocation("2006-01-02", c.Date, cv.loc)
		y, m, d := now.In(cv.loc).Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, cv.loc)
		if day.Before(today) {
			fields["date"] = "must not be earlier than today"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
