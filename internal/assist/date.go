package assist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var months = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

var (
	numericDateRe = regexp.MustCompile(`^(\d{1,2})[/\-.\s](\d{1,2})[/\-.\s](\d{2,4})$`)
	namedDateRe   = regexp.MustCompile(`^(\d{1,2})[/\-.\s]?([A-Za-z]{3,9})[/\-.\s]?(\d{2,4})$`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
)

// ToISO normalizes a day-first date (dd/mm/yyyy, dd-Mon-yy and similar) to
// YYYY-MM-DD. Two-digit years above 50 land in the 1900s.
func ToISO(raw string) (string, bool) {
	s := spaceRunRe.ReplaceAllString(strings.TrimSpace(raw), " ")

	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		return formatISO(d, mo, m[3])
	}
	if m := namedDateRe.FindStringSubmatch(s); m != nil {
		mo, ok := months[strings.ToLower(m[2])]
		if !ok {
			return "", false
		}
		d, _ := strconv.Atoi(m[1])
		return formatISO(d, mo, m[3])
	}
	return "", false
}

func formatISO(day, month int, year string) (string, bool) {
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return "", false
	}
	if len(year) == 2 {
		yy, _ := strconv.Atoi(year)
		if yy > 50 {
			year = "19" + year
		} else {
			year = "20" + year
		}
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, month, day), true
}
