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
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLoggerWithWriter_JSONComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&Config{Level: "info"}, &buf).Component("planner")
	l.Info("step recorded", "step", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "planner", rec["component"])
	assert.Equal(t, "step recorded", rec["msg"])
	assert.EqualValues(t, 1, rec["step"])
}

func TestNewLoggerWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&Config{Level: "warn", Format: "text"}, &buf)
	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	l, err := NewLogger(&Config{File: path})
	require.NoError(t, err)
	l.Info("to file")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNilComponent(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Component("x").Info("dropped") })
}
