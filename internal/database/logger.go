package database

import (
	"time"

	"flowtrack/backend/internal/logging"

	"gorm.io/gorm/logger"
)

type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...interface{}) {
	logging.Debug().Str("component", "gorm").Msgf(format, args...)
}

func newGormLogger(level logger.LogLevel) logger.Interface {
	return logger.New(zerologWriter{}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
