package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/twharvest/twharvest/pkg/errors"
)

func TestColorizeRespectsNoColor(t *testing.T) {
	Configure(false, true, FormatText)
	assert.Equal(t, "hello", Red("hello"))

	Configure(false, false, FormatText)
	assert.Contains(t, Red("hello"), "\033[31m")
}

func TestReportErrorMapsKindToExitCode(t *testing.T) {
	Configure(false, true, FormatText)
	code := ReportError(errors.New(errors.Auth, "missing cookies"))
	assert.Equal(t, 3, code)

	code = ReportError(errors.New(errors.Partial, "some users failed"))
	assert.Equal(t, 4, code)

	code = ReportError(assertionError{})
	assert.Equal(t, 5, code)
}

type assertionError struct{}

func (assertionError) Error() string { return "boom" }
