// Package timestamp extracts the posting-time token embedded in message text.
//
// The token format is fixed: dd-MM-yyyy HH:mm, 24-hour clock, anywhere in the
// text. Only the first occurrence is consumed; any later occurrence stays in
// the text untouched.
package timestamp

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrMalformedTimestamp is returned when the text does not contain a valid
// dd-MM-yyyy HH:mm token.
var ErrMalformedTimestamp = errors.New("text does not contain a dd-MM-yyyy HH:mm timestamp")

var tokenPattern = regexp.MustCompile(`(\d{2})-(\d{2})-(\d{4})\s(\d{2}):(\d{2})`)

const tokenLayout = "02-01-2006 15:04"

// Extract scans text for the first dd-MM-yyyy HH:mm token, interprets it as
// wall-clock time in loc and returns the corresponding UTC instant together
// with the text with exactly that token removed. Literal values that do not
// form a real date (month 13, February 31) fail the same way as a missing
// token.
func Extract(text string, loc *time.Location) (time.Time, string, error) {
	idx := tokenPattern.FindStringSubmatchIndex(text)
	if idx == nil {
		return time.Time{}, "", ErrMalformedTimestamp
	}

	group := func(n int) string { return text[idx[2*n]:idx[2*n+1]] }
	// Rebuild the token with a single space: the pattern's \s also matches
	// tabs and newlines, which time.ParseInLocation would reject.
	normalized := fmt.Sprintf("%s-%s-%s %s:%s", group(1), group(2), group(3), group(4), group(5))

	at, err := time.ParseInLocation(tokenLayout, normalized, loc)
	if err != nil {
		return time.Time{}, "", ErrMalformedTimestamp
	}

	stripped := text[:idx[0]] + text[idx[1]:]
	return at.UTC(), stripped, nil
}
