package mcpserver

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type scrapeParams struct {
	URL string `validate:"required,url"`
}

type agentParams struct {
	Prompt string `validate:"required,max=10000"`
}

// validationError renders a validator.ValidationErrors into a single
// human-readable sentence naming the first offending field and tag.
func validationError(err error) string {
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return err.Error()
	}
	fe := ve[0]
	return "invalid " + strings.ToLower(fe.Field()) + ": failed " + fe.Tag() + " check"
}
