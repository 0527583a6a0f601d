package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/pkg/constants"
	"github.com/iota-uz/taskpulse/pkg/serrors"
)

var fieldNames = map[string]string{
	"Title":           "title",
	"Status":          "status",
	"PercentComplete": "percent_complete",
	"AssignedToID":    "assigned_to_id",
	"StartDate":       "start_date",
	"DueDate":         "due_date",
}

func fieldName(field string) string {
	return fieldNames[field]
}

func validateStruct(v any) serrors.ValidationErrors {
	err := constants.Validate.Struct(v)
	if err == nil {
		return serrors.ValidationErrors{}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return serrors.ProcessValidatorErrors(verrs, fieldName)
	}
	return serrors.ValidationErrors{"_": err}
}

// ValidatePatch rejects a status/progress update before it reaches the network.
func ValidatePatch(p task.Patch) error {
	if p.Empty() {
		return ValidationError("nothing to update", map[string]string{"_": "status or percent_complete is required"})
	}
	if errs := validateStruct(p); len(errs) > 0 {
		return ValidationError(errs.Error(), errs.Messages())
	}
	return nil
}

// ValidateDraft checks a new task against the known tasks: the title is required
// and unique ignoring case and surrounding spaces, and the start date may not
// follow the due date.
func ValidateDraft(d task.Draft, existing []task.Task) error {
	d.Normalize()
	errs := validateStruct(d)

	if d.Title != "" {
		for _, t := range existing {
			if strings.EqualFold(strings.TrimSpace(t.Title), d.Title) {
				errs["title"] = errors.New("must be unique")
				break
			}
		}
	}
	if d.StartDate != nil && d.DueDate != nil &&
		civilDate(*d.StartDate, d.StartDate.Location()).After(civilDate(*d.DueDate, d.DueDate.Location())) {
		errs["due_date"] = errors.New("must not be before start_date")
	}

	if len(errs) > 0 {
		return ValidationError(errs.Error(), errs.Messages())
	}
	return nil
}
