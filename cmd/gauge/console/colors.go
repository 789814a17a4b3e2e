package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
)

// Level colors a state of charge: red below 15%, yellow below 40%, green otherwise.
func Level(percent uint16) string {
	switch {
	case percent < 15:
		return Red(percent, "%")
	case percent < 40:
		return Yellow(percent, "%")
	}
	return Green(percent, "%")
}
