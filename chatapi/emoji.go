package chatapi

import (
	"strconv"
	"strings"
)

// parseEmoji turns a stored emoji string into its wire form. Custom emoji
// arrive as <:name:id> or <a:name:id>; anything else is treated as a
// unicode emoji.
func parseEmoji(s string) *wireEmoji {
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		inner := strings.Trim(s, "<>")
		parts := strings.Split(inner, ":")
		if len(parts) >= 3 {
			if _, err := strconv.ParseUint(parts[2], 10, 64); err == nil {
				return &wireEmoji{ID: parts[2], Name: parts[1], Animated: parts[0] == "a"}
			}
		}
		return nil
	}
	return &wireEmoji{Name: s}
}
