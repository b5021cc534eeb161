package sqlupgrade

import "github.com/loykin/sqlupgrade/internal/common"

type Logger = common.Logger

type LogLevel = common.LogLevel

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

func NewLogger(level LogLevel) *Logger { return common.NewLogger(level) }

func NewJSONLogger(level LogLevel) *Logger { return common.NewJSONLogger(level) }

func NewColorLogger(level LogLevel) *Logger { return common.NewColorLogger(level) }

func ParseLogLevel(s string) (LogLevel, error) { return common.ParseLogLevel(s) }

// SetDefaultLogger replaces the logger used by every package.
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }

func GetLogger() *Logger { return common.GetLogger() }

// EnableMasking toggles masking of DSN passwords and secrets in logs.
func EnableMasking(enabled bool) { common.EnableMasking(enabled) }

func MaskSensitiveData(s string) string { return common.MaskSensitiveData(s) }
