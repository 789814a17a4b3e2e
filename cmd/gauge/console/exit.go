package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit prints nothing itself, the returned error is reported by the cli app with the given code.
func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}
