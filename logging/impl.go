package logging

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl fans every entry out to its appenders. Subloggers share the appender slice but carry
// their own level.
type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{name: name, level: NewAtomicLevelAt(level), inUTC: inUTC, appenders: appenders}
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return newImpl(name, imp.level.Get(), imp.inUTC, imp.appenders...)
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// callerDepth skips callerOf, emit and the exported logging method.
const callerDepth = 3

func callerOf(skip int) zapcore.EntryCaller {
	var caller zapcore.EntryCaller
	var ok bool
	caller.PC, caller.File, caller.Line, ok = runtime.Caller(skip)
	if !ok {
		return caller
	}
	caller.Defined = true
	if fn := runtime.FuncForPC(caller.PC); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}

// fieldsOf pairs up alternating keys and values. A trailing key without a value is kept with an
// error as its value.
func fieldsOf(keysAndValues []interface{}) []zapcore.Field {
	if len(keysAndValues) == 0 {
		return nil
	}
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

// emit writes one entry unless it is below the logger's level and force is unset.
func (imp *impl) emit(level Level, force bool, msg string, keysAndValues []interface{}) {
	if !force && level < imp.level.Get() {
		return
	}
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     callerOf(callerDepth),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	fields := fieldsOf(keysAndValues)
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) Debug(args ...interface{}) {
	imp.emit(DEBUG, false, fmt.Sprint(args...), nil)
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.emit(DEBUG, false, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.emit(DEBUG, false, msg, keysAndValues)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.emit(DEBUG, IsDebugMode(ctx), msg, keysAndValues)
}

func (imp *impl) Info(args ...interface{}) {
	imp.emit(INFO, false, fmt.Sprint(args...), nil)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.emit(INFO, false, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.emit(INFO, false, msg, keysAndValues)
}

func (imp *impl) Warn(args ...interface{}) {
	imp.emit(WARN, false, fmt.Sprint(args...), nil)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.emit(WARN, false, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.emit(WARN, false, msg, keysAndValues)
}

func (imp *impl) Error(args ...interface{}) {
	imp.emit(ERROR, false, fmt.Sprint(args...), nil)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.emit(ERROR, false, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.emit(ERROR, false, msg, keysAndValues)
}

// Fatal logs at error level regardless of the configured level and exits with status 1.
func (imp *impl) Fatal(args ...interface{}) {
	imp.emit(ERROR, true, fmt.Sprint(args...), nil)
	os.Exit(1)
}
