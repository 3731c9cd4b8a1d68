package render

import (
	"strings"

	"github.com/gogpu/gg"
	"golang.org/x/image/colornames"
)

// ParseColor accepts #rgb, #rgba, #rrggbb, #rrggbbaa and CSS colour names.
// Anything else paints black.
func ParseColor(s string) gg.RGBA {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		if isHex(s[1:]) {
			return gg.Hex(s)
		}
		return gg.Black
	}
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return gg.FromColor(c)
	}
	return gg.Black
}

func isHex(s string) bool {
	switch len(s) {
	case 3, 4, 6, 8:
	default:
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
