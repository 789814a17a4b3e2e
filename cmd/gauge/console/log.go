package console

import (
	"fmt"
	"io"
	"os"
)

const (
	PictoBattery     = "🔋"
	PictoLowBattery  = "🪫"
	PictoBolt        = "⚡"
	PictoThermometer = "🌡"
	PictoFlask       = "🧪"
	PictoStop        = "🚫"
)

var writer io.Writer
var errWriter io.Writer

func init() {
	writer = os.Stdout
	errWriter = os.Stderr
}

func SetOutput(w, errw io.Writer) {
	writer = w
	errWriter = errw
}

// Writer returns the standard output writer, e.g. for yaml encoders.
func Writer() io.Writer {
	return writer
}

func Warnf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Yellow("WARN"), fmt.Sprintf(msg, args...))
}

func Infof(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", White("..."), fmt.Sprintf(msg, args...))
}

func PInfof(picto, msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", picto, fmt.Sprintf(msg, args...))
}

func Printf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, msg, args...)
}
