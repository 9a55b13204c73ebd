package models

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidDefinition marks a workflow, step or trigger definition that fails validation.
var ErrInvalidDefinition = errors.New("invalid definition")

var validate = validator.New(validator.WithRequiredStructEnabled())
