package saxreader

import (
	"fmt"
	"strconv"
	"strings"
)

// parseISO8601Minutes parses the restricted subset of ISO-8601 durations
// that appear in mzXML/mzData files: "PT" followed by an optional hour
// field ("NH"), minute field ("NM") and second field ("N[.N]S"), e.g.
// "PT1.0S", "PT30M", "PT1H2M3.5S".
func parseISO8601Minutes(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "PT") {
		return 0, fmt.Errorf("saxreader: not a time duration: %q", s)
	}
	rest := s[2:]
	if rest == "" {
		return 0, fmt.Errorf("saxreader: empty time duration: %q", s)
	}

	var hours, minutes, seconds float64
	var sawField bool

	consume := func(suffix byte) (float64, bool, error) {
		idx := strings.IndexByte(rest, suffix)
		if idx < 0 {
			return 0, false, nil
		}
		numStr := rest[:idx]
		rest = rest[idx+1:]
		v, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, true, fmt.Errorf("saxreader: invalid duration field %q: %w", numStr, err)
		}
		return v, true, nil
	}

	if v, ok, err := consume('H'); err != nil {
		return 0, err
	} else if ok {
		hours = v
		sawField = true
	}
	if v, ok, err := consume('M'); err != nil {
		return 0, err
	} else if ok {
		minutes = v
		sawField = true
	}
	if v, ok, err := consume('S'); err != nil {
		return 0, err
	} else if ok {
		seconds = v
		sawField = true
	}
	if !sawField || rest != "" {
		return 0, fmt.Errorf("saxreader: malformed duration: %q", s)
	}
	return hours*60 + minutes + seconds/60.0, nil
}
