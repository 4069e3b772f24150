// Package colors holds the embed color palette (Catppuccin Latte).
package colors

const (
	Green    = 0x40a02b
	Red      = 0xd20f39
	Yellow   = 0xdf8e1d
	Blue     = 0x1e66f5
	Sapphire = 0x209fb5
	Mauve    = 0x8839ef
)

// Semantic aliases used across embeds.
const (
	Success = Green
	Error   = Red
	Warning = Yellow
	Info    = Blue
	Primary = Sapphire
	Live    = Green
)
