package dsym

import "github.com/bitrise-io/go-utils/v2/log"

// NewQuietLogger returns a logger that drops routine output while keeping
// warnings and errors visible.
func NewQuietLogger(logger log.Logger) log.Logger {
	return quietLogger{Logger: logger}
}

type quietLogger struct {
	log.Logger
}

func (l quietLogger) Infof(format string, v ...interface{})   {}
func (l quietLogger) Printf(format string, v ...interface{})  {}
func (l quietLogger) Donef(format string, v ...interface{})   {}
func (l quietLogger) Debugf(format string, v ...interface{})  {}
func (l quietLogger) TInfof(format string, v ...interface{})  {}
func (l quietLogger) TPrintf(format string, v ...interface{}) {}
func (l quietLogger) TDonef(format string, v ...interface{})  {}
func (l quietLogger) TDebugf(format string, v ...interface{}) {}
func (l quietLogger) Println()                                {}
