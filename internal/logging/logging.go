package logging

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// New builds the root logger. format "json" switches to JSON lines.
func New(name, level, format string) hclog.Logger {
	lvl := hclog.LevelFromString(strings.TrimSpace(level))
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      lvl,
		Output:     os.Stderr,
		JSONFormat: strings.EqualFold(format, "json"),
	})
}
