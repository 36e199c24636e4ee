package export

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var namedColors = map[string]string{
	"black":  "000000",
	"white":  "FFFFFF",
	"red":    "FF0000",
	"green":  "008000",
	"blue":   "0000FF",
	"yellow": "FFFF00",
	"orange": "FFA500",
	"purple": "800080",
	"pink":   "FFC0CB",
	"brown":  "A52A2A",
	"gray":   "808080",
	"grey":   "808080",
}

var (
	rgbPattern = regexp.MustCompile(`(?i)^rgb\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\)$`)
	hslPattern = regexp.MustCompile(`(?i)^hsl\(\s*(\d+)\s*,\s*(\d+)%\s*,\s*(\d+)%\s*\)$`)
)

// NormalizeColor converts a CSS color expression to six upper-case hex
// digits without the leading '#'. It understands a small table of named
// colors, #hex, rgb() and hsl(). Short #hex is upper-cased as written; a
// bare '#' is rejected. ok is false for anything else.
func NormalizeColor(expr string) (hex string, ok bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", false
	}
	if v, found := namedColors[strings.ToLower(expr)]; found {
		return v, true
	}
	if rest, found := strings.CutPrefix(expr, "#"); found {
		if rest == "" {
			return "", false
		}
		if len(rest) > 6 {
			rest = rest[:6]
		}
		return strings.ToUpper(rest), true
	}
	if m := rgbPattern.FindStringSubmatch(expr); m != nil {
		return hexTriplet(channel(m[1]), channel(m[2]), channel(m[3])), true
	}
	if m := hslPattern.FindStringSubmatch(expr); m != nil {
		h := float64(atoi(m[1])) / 360
		s := float64(atoi(m[2])) / 100
		l := float64(atoi(m[3])) / 100
		r, g, b := hslToRGB(h, s, l)
		return hexTriplet(r, g, b), true
	}
	return "", false
}

// channel parses a decimal component, saturating at 255 so every channel
// stays two hex digits.
func channel(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v > 255 {
		return 255
	}
	return v
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func hexTriplet(r, g, b int) string {
	return fmt.Sprintf("%02X%02X%02X", r, g, b)
}

func hslToRGB(h, s, l float64) (int, int, int) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	toByte := func(v float64) int {
		return int(math.Min(255, math.Max(0, math.Round(v*255))))
	}
	return toByte(hueToRGB(p, q, h+1.0/3)), toByte(hueToRGB(p, q, h)), toByte(hueToRGB(p, q, h-1.0/3))
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}
