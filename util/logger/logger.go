package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing JSON lines to file and, when printToConsole is set,
// a human readable copy to stdout. A nil file logs to the console only.
func New(file io.Writer, printToConsole bool, level zerolog.Level) zerolog.Logger {
	writers := make([]io.Writer, 0, 2)
	if file != nil {
		writers = append(writers, file)
	}
	if printToConsole || file == nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
}

func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, eris.Wrapf(err, "invalid log level %q", level)
	}
	return lvl, nil
}
