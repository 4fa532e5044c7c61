package identifier

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kmunyaka/shule/core"
)

// Template placeholders recognized in identifier formats. These, together
// with {COUNTER:n}, are the stable contract external callers depend on.
const (
	phYear    = "{YEAR}"
	phGrade   = "{GRADE}"
	phSection = "{SECTION}"
)

var (
	counterRegex     = regexp.MustCompile(`\{COUNTER(:[0-9]+)?\}`)
	placeholderRegex = regexp.MustCompile(`\{[^{}]*\}`)

	// errors
	ErrInvalidPlaceholder = errors.New("format contains an unknown placeholder")
	ErrMissingCounter     = errors.New("format must contain a {COUNTER} placeholder")
	ErrDuplicateCounter   = errors.New("format must contain only one {COUNTER} placeholder")
)

// ValidateFormat checks a format string at configuration-save time.
// A format must contain exactly one counter placeholder and no unknown
// {...} tokens. Returns a *core.ValidationError wrapping one of
// ErrInvalidPlaceholder, ErrMissingCounter or ErrDuplicateCounter.
func ValidateFormat(format string) error {
	counters := counterRegex.FindAllString(format, -1)
	switch {
	case len(counters) == 0:
		return formatError(ErrMissingCounter, ErrMissingCounter.Error())
	case len(counters) > 1:
		return formatError(ErrDuplicateCounter, ErrDuplicateCounter.Error())
	}
	if width, ok := counterWidth(counters[0]); ok && width < 1 {
		return formatError(ErrInvalidPlaceholder, fmt.Sprintf("counter width must be positive in %s", counters[0]))
	}

	rest := counterRegex.ReplaceAllString(format, "")
	rest = strings.NewReplacer(phYear, "", phGrade, "", phSection, "").Replace(rest)
	if tok := placeholderRegex.FindString(rest); tok != "" {
		return formatError(ErrInvalidPlaceholder, fmt.Sprintf("unknown placeholder %s", tok))
	}
	return nil
}

// Render substitutes all placeholders in format from ctx. It is pure: the
// same inputs always produce the same string. A padded counter whose
// decimal length exceeds the declared width is rendered in full, never
// truncated.
func Render(format string, ctx Context) string {
	out := strings.NewReplacer(
		phYear, strconv.Itoa(ctx.Year),
		phGrade, ctx.Grade,
		phSection, ctx.Section,
	).Replace(format)

	return counterRegex.ReplaceAllStringFunc(out, func(m string) string {
		if width, ok := counterWidth(m); ok {
			return fmt.Sprintf("%0*d", width, ctx.Counter)
		}
		return strconv.Itoa(ctx.Counter)
	})
}

// CounterWidth reports the declared zero-padding width of the counter
// placeholder in format, or 0 when the bare {COUNTER} form is used.
func CounterWidth(format string) int {
	if m := counterRegex.FindString(format); m != "" {
		if width, ok := counterWidth(m); ok {
			return width
		}
	}
	return 0
}

func counterWidth(placeholder string) (int, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(placeholder, "{COUNTER"), "}")
	if trimmed == "" {
		return 0, false
	}
	width, err := strconv.Atoi(strings.TrimPrefix(trimmed, ":"))
	if err != nil {
		return 0, false
	}
	return width, true
}

func formatError(kind error, msg string) error {
	return core.NewValidationError(kind, core.FieldError{Field: "format", Error: msg})
}
