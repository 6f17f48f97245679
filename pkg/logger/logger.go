package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ANSI color codes, used by the banner/section helpers below — the
// leveled log lines themselves are colored by logrus's own formatter.
const (
	ColorReset = "\033[0m"
	ColorGreen = "\033[32m"
	ColorCyan  = "\033[36m"
)

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the minimum log level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		base.Warnf("logger: unknown level %q, keeping %s", level, base.GetLevel())
		return
	}
	base.SetLevel(lvl)
}

// For returns a component-scoped entry. Every package logs through one
// of these rather than the bare base logger, so log lines carry which
// pipeline (sender, receiver, summary, ...) emitted them.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// Fatal logs a fatal error and exits. Reserved for startup failures
// (bad config, unable to bind the socket); nothing in the reliable
// channel core itself calls this.
func Fatal(format string, args ...interface{}) {
	base.Fatalf(format, args...)
}

// Section prints a plain-text section header — operator-facing output
// for the cmd/ binaries, not part of the structured log stream.
func Section(title string) {
	border := "───────────────────────────────────────────"
	fmt.Printf("\n%s%s%s\n%s\n%s%s%s\n", ColorCyan, border, ColorReset, title, ColorCyan, border, ColorReset)
}

// Banner prints the startup banner for a cmd/ binary.
func Banner(name, version string) {
	fmt.Printf("%s%s%s %sv%s%s\n", ColorCyan, name, ColorReset, ColorGreen, version, ColorReset)
}
