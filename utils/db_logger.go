package utils

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm/logger"
)

// FilteredGormLogger wraps a GORM logger and drops statements matching any ignored pattern
type FilteredGormLogger struct {
	logger.Interface
	ignoredPatterns []string
}

func NewFilteredGormLogger(l logger.Interface, ignoredPatterns ...string) *FilteredGormLogger {
	return &FilteredGormLogger{Interface: l, ignoredPatterns: ignoredPatterns}
}

func (l *FilteredGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &FilteredGormLogger{
		Interface:       l.Interface.LogMode(level),
		ignoredPatterns: l.ignoredPatterns,
	}
}

// Trace skips the polling queries of the sweeps, which would otherwise flood the log every minute
func (l *FilteredGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	sql, rows := fc()
	for _, pattern := range l.ignoredPatterns {
		if strings.Contains(sql, pattern) {
			return
		}
	}
	l.Interface.Trace(ctx, begin, func() (string, int64) { return sql, rows }, err)
}
