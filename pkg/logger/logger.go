package logger

import (
	"go.uber.org/zap"
)

// New 创建全局日志器
// debug=true 时输出开发格式（彩色、人类可读），否则输出 JSON
func New(debug bool) (*zap.SugaredLogger, error) {
	var (
		base *zap.Logger
		err  error
	)
	if debug {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return base.Sugar(), nil
}

// Nop 静默日志器，测试用
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
