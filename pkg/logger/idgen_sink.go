package logger

import "idgen_server/pkg/snowflake"

// SnowflakeSink forwards generator diagnostics to l.
func SnowflakeSink(l *Logger) snowflake.Sink {
	return snowflake.SinkFunc(func(level snowflake.Level, msg string, err error) {
		l.Log(fromSnowflakeLevel(level), msg, err)
	})
}

func fromSnowflakeLevel(level snowflake.Level) Level {
	switch level {
	case snowflake.LevelDebug:
		return LevelDebug
	case snowflake.LevelInfo:
		return LevelInfo
	case snowflake.LevelWarn:
		return LevelWarn
	default:
		return LevelError
	}
}
