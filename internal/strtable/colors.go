package strtable

import (
	"fmt"
	"strings"
)

// Color is an in-game text color code. Text is colored by prefixing it with
// ColorPrefix and the code.
type Color string

const ColorPrefix = "ÿc"

const (
	White     Color = "0"
	Red       Color = "1"
	Green     Color = "2"
	Blue      Color = "3"
	Gold      Color = "4"
	Gray      Color = "5"
	Black     Color = "6"
	Tan       Color = "7"
	Orange    Color = "8"
	Yellow    Color = "9"
	DarkGreen Color = ":"
	Purple    Color = ";"
)

var colorNames = map[string]Color{
	"white":      White,
	"red":        Red,
	"green":      Green,
	"set":        Green,
	"blue":       Blue,
	"magic":      Blue,
	"gold":       Gold,
	"unique":     Gold,
	"gray":       Gray,
	"grey":       Gray,
	"black":      Black,
	"tan":        Tan,
	"orange":     Orange,
	"crafted":    Orange,
	"yellow":     Yellow,
	"rare":       Yellow,
	"dark green": DarkGreen,
	"darkgreen":  DarkGreen,
	"purple":     Purple,
}

func ParseColor(name string) (Color, error) {
	c, ok := colorNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown color %q", name)
	}
	return c, nil
}

func (c Color) Code() string {
	return ColorPrefix + string(c)
}

// Apply colors text, replacing a color code already at its start.
func (c Color) Apply(text string) string {
	return c.Code() + StripColor(text)
}

// StripColor removes a leading color code.
func StripColor(text string) string {
	if strings.HasPrefix(text, ColorPrefix) && len(text) > len(ColorPrefix) {
		return text[len(ColorPrefix)+1:]
	}
	return text
}
