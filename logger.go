package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger writes human-readable entries to stdout and, when fileName is
// set, to the same file in outDir. The returned func flushes and closes it.
func newLogger(outDir, fileName string) (*zap.Logger, func(), error) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zap.InfoLevel)}
	var f *os.File
	if fileName != "" {
		var err error
		f, err = os.Create(filepath.Join(outDir, fileName))
		if err != nil {
			return nil, nil, errors.Wrap(err, "create log file")
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(f), zap.DebugLevel))
	}
	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() {
		_ = logger.Sync()
		if f != nil {
			f.Close()
		}
	}, nil
}
