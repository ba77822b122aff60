// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger 简单封装，供 internal 使用
type Logger struct {
	*slog.Logger
}

// Config 日志配置（可与 config 包对接）
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ParseLevel 将配置中的级别字符串转换为 slog.Level，未知值按 info 处理
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OpenOutput 返回日志输出目标：File 为空时为 stdout，否则以追加方式打开文件
func OpenOutput(cfg *Config) (io.Writer, error) {
	if cfg == nil || cfg.File == "" {
		return os.Stdout, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// NewLogger 根据配置创建 Logger，cfg 可为 nil 使用默认
func NewLogger(cfg *Config) (*Logger, error) {
	out, err := OpenOutput(cfg)
	if err != nil {
		return nil, err
	}
	return NewLoggerWithWriter(cfg, out), nil
}

// NewLoggerWithWriter 使用指定输出创建 Logger，测试中可传入 bytes.Buffer
func NewLoggerWithWriter(cfg *Config, w io.Writer) *Logger {
	level := slog.LevelInfo
	if cfg != nil {
		level = ParseLevel(cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg != nil && cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Nop 返回丢弃全部输出的 Logger
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Component 返回带 component 字段的子 Logger
func (l *Logger) Component(name string) *Logger {
	if l == nil {
		return Nop().Component(name)
	}
	return &Logger{Logger: l.With("component", name)}
}
