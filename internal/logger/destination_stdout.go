package logger

import (
	"bytes"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

type destinationStdout struct {
	structured bool
	stdout     io.Writer

	useColor bool
	buf      bytes.Buffer
}

func newDestionationStdout(structured bool, stdout io.Writer) destination {
	useColor := false
	if f, ok := stdout.(*os.File); ok && !structured {
		useColor = term.IsTerminal(int(f.Fd()))
	}

	return &destinationStdout{
		structured: structured,
		stdout:     stdout,
		useColor:   useColor,
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...interface{}) {
	formatEntry(&d.buf, t, level, d.structured, d.useColor, format, args)
	d.stdout.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStdout) close() {
}
