package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reQ      = regexp.MustCompile(`^[\p{L}0-9 _'.,\-]{1,50}$`)
	reID     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reCond   = regexp.MustCompile(`^(raw|sorted|processed)$`)
	rePickup = regexp.MustCompile(`^(pending|accepted|on_the_way|picked_up|completed|cancelled)$`)
	reOrder  = regexp.MustCompile(`^(pending|confirmed|shipped|completed|cancelled)$`)
)

// Q validates a search query: trims, enforces allowed characters and max length
func Q(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if len(s) > 50 {
		s = s[:50]
	}
	return s, reQ.MatchString(s)
}

// ID validates a resource identifier (uuid or seeded slug).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Condition validates the listing condition enum.
func Condition(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reCond.MatchString(s)
}

func PickupStatus(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, rePickup.MatchString(s)
}

func OrderStatus(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reOrder.MatchString(s)
}

// Page parses page/limit query values. Anything unparsable falls back to the
// defaults; limit is clamped to 100.
func Page(page, limit string) (int, int) {
	p, err := strconv.Atoi(strings.TrimSpace(page))
	if err != nil || p < 1 {
		p = 1
	}
	l, err := strconv.Atoi(strings.TrimSpace(limit))
	if err != nil || l < 1 {
		l = 20
	}
	if l > 100 {
		l = 100
	}
	return p, l
}

// Coord parses one coordinate component within [-bound, bound].
func Coord(s string, bound float64) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < -bound || v > bound {
		return 0, false
	}
	return v, true
}

// Decimal parses a non-negative decimal such as a price filter.
func Decimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// Rating accepts 1..5 inclusive.
func Rating(n int) bool { return n >= 1 && n <= 5 }

// Text trims free text and enforces a max length in bytes.
func Text(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	return s, len(s) <= max
}
