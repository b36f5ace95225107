package util

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// unitMap holds the power of ten of each scale suffix. mil is handled
// separately.
var unitMap = map[string]int{
	"t":   12,
	"g":   9,
	"meg": 6,
	"k":   3,
	"m":   -3,
	"u":   -6,
	"n":   -9,
	"p":   -12,
	"f":   -15,
}

const mil = 25.4e-6

var valuePattern = regexp.MustCompile(`^([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)(meg|mil|[tgkmunpf])?[a-z]*$`)

// ParseValue reads a number with an optional SPICE scale suffix. 1k -> 1000,
// 180n -> 1.8e-7. Trailing unit letters after the suffix are ignored.
func ParseValue(val string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(val))
	matches := valuePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}
	// Dividing by an exact power of ten keeps 180n equal to 180e-9.
	switch suffix := matches[2]; {
	case suffix == "mil":
		num *= mil
	case suffix != "":
		if exp := unitMap[suffix]; exp >= 0 {
			num *= math.Pow10(exp)
		} else {
			num /= math.Pow10(-exp)
		}
	}
	return num, nil
}
