package policy

import (
	"errors"
	"regexp"
)

// ErrBadDuration is returned for malformed compact duration notation.
var ErrBadDuration = errors.New("malformed duration notation")

// Fixed unit table for the compact duration notation. A month is exactly
// four weeks and a year twelve such months; this simplified calendar is part
// of the stored-policy format and must not be replaced with a Gregorian
// calculation.
var durationUnits = map[byte]int64{
	'h': 3600,
	'd': 86400,
	'w': 604800,
	'm': 2419200,  // 4 weeks
	'y': 29030400, // 12 * 4 weeks
}

var durationPattern = regexp.MustCompile(`^(\d+[hdwmy])+$`)
var durationRun = regexp.MustCompile(`(\d+)([hdwmy])`)

// ParseDuration converts compact duration notation (a sequence of
// <integer><unit> runs, unit one of h, d, w, m, y) into seconds.
// "1w2d" parses to 777600, "1y" to 29030400. The whole input must consist of
// such runs; anything else is rejected with ErrBadDuration.
func ParseDuration(s string) (int64, error) {
	if !durationPattern.MatchString(s) {
		return 0, ErrBadDuration
	}
	var total int64
	for _, m := range durationRun.FindAllStringSubmatch(s, -1) {
		var n int64
		for i := 0; i < len(m[1]); i++ {
			n = n*10 + int64(m[1][i]-'0')
		}
		total += n * durationUnits[m[2][0]]
	}
	return total, nil
}
