// internal/logger/styled.go
package logger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pterm/pterm"

	"github.com/arkime/httppool/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting methods for
// the pool's recurring log shapes: endpoint names, priorities, dropped
// counts, and cool-down windows.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

// NewStyledLogger creates a new styled logger with the given theme.
func NewStyledLogger(logger *slog.Logger, t *theme.Theme) *StyledLogger {
	return &StyledLogger{logger: logger, theme: t}
}

func (sl *StyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *StyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *StyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *StyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Highlight.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Accent.Sprint(endpoint))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Accent.Sprint(endpoint))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Accent.Sprint(endpoint))
	sl.logger.Error(styledMsg, args...)
}

// WarnEndpointCoolingDown reports a transport failure that has put an
// endpoint into cool-down until the given time (§4.1, §7). The dispatcher
// does not call it; it logs cool-downs through its ports.Logger.
func (sl *StyledLogger) WarnEndpointCoolingDown(endpoint string, until time.Time, args ...any) {
	styledMsg := fmt.Sprintf("endpoint %s cooling down until %s",
		pterm.Style{sl.theme.Warning}.Sprint(endpoint),
		until.Format(time.RFC3339))
	sl.logger.Warn(styledMsg, args...)
}

// InfoWithNumbers styles a variadic list of counters (queue length,
// outstanding, dropped) inline in a format string.
func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	formatted := make([]string, len(numbers))
	for i, num := range numbers {
		formatted[i] = sl.theme.Highlight.Sprint(num)
	}
	styledMsg := fmt.Sprintf(msg, toInterfaceSlice(formatted)...)
	sl.logger.Info(styledMsg)
}

// GetUnderlying returns the underlying slog.Logger for cases where direct
// access is needed.
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// WithAttrs creates a new StyledLogger with additional structured attributes.
func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

// With creates a new StyledLogger with additional key-value pairs.
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

// NewWithTheme creates both a regular logger and a styled logger.
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
