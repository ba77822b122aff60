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

// Package errors 提供统一错误辅助与结构化错误类型，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误，配合 errors.Is 使用
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidArg    = errors.New("invalid argument")
	ErrParse         = errors.New("parse error")
	ErrRemoteCall    = errors.New("remote call failed")
	ErrConfiguration = errors.New("configuration error")
)

// UnmatchedToolPrefix 规划器给出的工具名无法匹配注册表时的哨兵前缀（不是 error）
const UnmatchedToolPrefix = "No matched tool given: "

// ParseError 工具调用块存在但无法按任一格式解析
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparseable tool call %q: %v", e.Text, e.Err)
	}
	return fmt.Sprintf("unparseable tool call %q", e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrParse) 成立
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// RemoteCallError 远程调用（模型、搜索）在重试耗尽后仍失败
type RemoteCallError struct {
	Op       string
	Provider string
	Attempts int
	Err      error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Provider, e.Op, e.Attempts, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrRemoteCall) 成立
func (e *RemoteCallError) Is(target error) bool { return target == ErrRemoteCall }

// ConfigurationError 构造阶段缺少必需凭证或配置，属于致命错误
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("configuration %s is required", e.Key)
}

// Is 使 errors.Is(err, ErrConfiguration) 成立
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// MissingConfig 构造缺少配置项的 ConfigurationError
func MissingConfig(key string) error {
	return &ConfigurationError{Key: key}
}

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is 透传标准库 errors.Is，便于调用方只导入本包
func Is(err, target error) bool { return errors.Is(err, target) }

// As 透传标准库 errors.As
func As(err error, target any) bool { return errors.As(err, target) }

// New 透传标准库 errors.New
func New(text string) error { return errors.New(text) }
