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

package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-platform/internal/agent/planner"
	"agent-platform/internal/runtime/jobstore"
)

type fakeSolver struct {
	mu       sync.Mutex
	seen     []string
	inFlight atomic.Int32
	peak     atomic.Int32
	fail     map[string]bool
}

func (f *fakeSolver) Run(ctx context.Context, q planner.Query) (*planner.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	f.mu.Lock()
	f.seen = append(f.seen, q.PID)
	f.mu.Unlock()
	if f.fail[q.PID] {
		return nil, errors.New("solver exploded")
	}
	return &planner.Result{PID: q.PID, Query: q.Text, DirectOutput: "Answer: " + q.PID, StepCount: 1, StopReason: planner.StopVerified}, nil
}

func problems(n int) []Problem {
	out := make([]Problem, n)
	for i := range out {
		out[i] = Problem{PID: string(rune('a' + i)), Query: "q"}
	}
	return out
}

func TestRunner_KeyedByPIDWithBoundedConcurrency(t *testing.T) {
	solver := &fakeSolver{}
	store := jobstore.NewMemoryStore()
	r := NewRunner(solver, store, Options{Concurrency: 2}, nil)

	sum, err := r.Run(context.Background(), problems(6))
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 6, sum.Solved)
	assert.LessOrEqual(t, solver.peak.Load(), int32(2))
	require.Len(t, sum.Results, 6)
	for pid, res := range sum.Results {
		assert.Equal(t, pid, res.PID)
	}

	run, err := store.GetByPID(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, run.Status)
	assert.Equal(t, "Answer: c", run.DirectOutput)
}

func TestRunner_FailuresAreRecorded(t *testing.T) {
	solver := &fakeSolver{fail: map[string]bool{"b": true}}
	store := jobstore.NewMemoryStore()
	sum, err := NewRunner(solver, store, Options{Concurrency: 3}, nil).Run(context.Background(), problems(3))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Solved)
	assert.Equal(t, 1, sum.Failed)
	assert.Contains(t, sum.Errors["b"], "solver exploded")

	run, err := store.GetByPID(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusFailed, run.Status)
	assert.Equal(t, "solver exploded", run.Error)
}

func TestRunner_SkipExisting(t *testing.T) {
	store := jobstore.NewMemoryStore()
	first := &fakeSolver{}
	_, err := NewRunner(first, store, Options{}, nil).Run(context.Background(), problems(2))
	require.NoError(t, err)

	second := &fakeSolver{}
	sum, err := NewRunner(second, store, Options{SkipExisting: true}, nil).Run(context.Background(), problems(3))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 1, sum.Solved)
	assert.Equal(t, []string{"c"}, second.seen)
	assert.Len(t, sum.Results, 3)
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := NewRunner(&fakeSolver{}, jobstore.NewMemoryStore(), Options{}, nil).Run(ctx, problems(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Solved)
}

func TestLoadProblems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "val.json")
	data := `[
		{"pid": 0, "query": "Which shape?", "image": "images/0.png", "answer": "b"},
		{"pid": "1", "question": "Count them", "answer": 3},
		{"pid": 2, "query": "abs", "image": "/abs/2.png"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	ps, err := LoadProblems(path)
	require.NoError(t, err)
	require.Len(t, ps, 3)
	assert.Equal(t, Problem{PID: "0", Query: "Which shape?", Image: filepath.Join(dir, "images/0.png"), Answer: "b"}, ps[0])
	assert.Equal(t, Problem{PID: "1", Query: "Count them", Answer: "3"}, ps[1])
	assert.Equal(t, "/abs/2.png", ps[2].Image)

	_, err = LoadProblems(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadProblems_MissingPIDUsesIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "val.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"query":"a"},{"query":"b"},{"pid":"x","query":"c"},{"query":"d"}]`), 0o644))

	ps, err := LoadProblems(path)
	require.NoError(t, err)
	pids := make([]string, len(ps))
	for i, p := range ps {
		pids[i] = p.PID
	}
	assert.Equal(t, []string{"0", "1", "x", "3"}, pids)

	solver := &fakeSolver{}
	sum, err := NewRunner(solver, jobstore.NewMemoryStore(), Options{Concurrency: 2}, nil).Run(context.Background(), ps)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Solved)
	assert.Len(t, sum.Results, 4)
}

func TestLoadProblems_RejectsBadPIDs(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"duplicate":       `[{"pid":"1","query":"a"},{"pid":1,"query":"b"}]`,
		"index collision": `[{"query":"a"},{"pid":"0","query":"b"}]`,
		"path separator":  `[{"pid":"../../x","query":"a"}]`,
	}
	for name, data := range cases {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
		_, err := LoadProblems(path)
		assert.Error(t, err, name)
	}
}

func TestRunner_RejectsDuplicatePIDs(t *testing.T) {
	solver := &fakeSolver{}
	_, err := NewRunner(solver, jobstore.NewMemoryStore(), Options{}, nil).Run(context.Background(),
		[]Problem{{PID: "a", Query: "q"}, {PID: "a", Query: "q2"}})
	assert.ErrorContains(t, err, "duplicate pid")

	_, err = NewRunner(solver, jobstore.NewMemoryStore(), Options{}, nil).Run(context.Background(),
		[]Problem{{Query: "q"}})
	assert.ErrorContains(t, err, "pid is required")
	assert.Empty(t, solver.seen)
}
