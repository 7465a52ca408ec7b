package xterm

import "fmt"

// Color renders text with an xterm escape prefix.
type Color interface {
	S(text string) string
}

type color struct {
	f uint8
	b uint8
}

// Standard XTerm Colors
var (
	Green     = color{f: 32, b: 1}
	Yellow    = color{f: 33, b: 1}
	Blue      = color{f: 34, b: 1}
	Red       = color{f: 35, b: 1}
	LightBlue = color{f: 36, b: 1}

	Warn = Red
)

func (c color) S(text string) string {
	return fmt.Sprintf("\x1b[%d;%dm%s\x1b[m", c.b, c.f, text)
}

type ColorSet []Color

var BasicColors = ColorSet{
	Green,
	Blue,
	Yellow,
	LightBlue,
}

func (cs ColorSet) Choose(i int) Color {
	return cs[i%len(cs)]
}

var NoColor = noColor{}

type noColor struct{}

func (c noColor) S(text string) string {
	return text
}
