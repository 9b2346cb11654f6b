package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	amountPattern = regexp.MustCompile(`-?[\d,]+\.?\d*`)
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern  = regexp.MustCompile(`^[+()\d][\d\s().-]{5,}$`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}`),
		regexp.MustCompile(`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}`),
		regexp.MustCompile(`[A-Za-z]+ \d{1,2},? \d{4}`),
		regexp.MustCompile(`\d{1,2} [A-Za-z]+ \d{4}`),
	}

	// OCR digit confusions inside otherwise numeric runs.
	digitFixes = strings.NewReplacer("o", "0", "O", "0", "l", "1", "I", "1")
	numericRun = regexp.MustCompile(`\d[\doOlI.,]*`)
)

// fixDigits repairs common OCR digit confusions (o→0, l→1) inside numeric
// runs, leaving surrounding text untouched. Returns the fixed string and
// whether anything changed.
func fixDigits(s string) (string, bool) {
	out := numericRun.ReplaceAllStringFunc(s, func(run string) string {
		return digitFixes.Replace(run)
	})
	return out, out != s
}

// parseAmount extracts a numeric value from a currency string, tolerating
// symbols and thousands separators.
func parseAmount(s string) (float64, bool) {
	match := amountPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	cleaned := strings.ReplaceAll(match, ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// formatAmount renders a recomputed amount with two decimals, matching the
// convention of monetary fields.
func formatAmount(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

func validAmount(s string) bool {
	_, ok := parseAmount(s)
	return ok
}

func validDate(s string) bool {
	for _, p := range datePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func validEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

func validPhone(s string) bool {
	return phonePattern.MatchString(strings.TrimSpace(s))
}
