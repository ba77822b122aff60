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

package http

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/common/ut"

	"agent-platform/internal/api/http/middleware"
)

func buildRouterForTest(rps float64) *Router {
	r := NewRouter(NewHandler(&fakeSolver{}, nil, nil, nil), middleware.NewMiddleware(nil))
	r.SetRateLimit(rps, 1)
	return r
}

func TestRouter_Routes(t *testing.T) {
	s := buildRouterForTest(0).Build(":0")

	for _, path := range []string{"/api/health", "/api/tools", "/api/runs", "/metrics"} {
		w := ut.PerformRequest(s.Engine, "GET", path, body(""))
		if got := w.Result().StatusCode(); got != 200 {
			t.Fatalf("GET %s status = %d, want 200", path, got)
		}
	}

	w := ut.PerformRequest(s.Engine, "GET", "/api/jobs", body(""))
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("GET /api/jobs status = %d, want 404", got)
	}
}

func TestRouter_CORSHeaders(t *testing.T) {
	s := buildRouterForTest(0).Build(":0")
	w := ut.PerformRequest(s.Engine, "GET", "/api/health", body(""))
	if got := string(w.Result().Header.Peek("Access-Control-Allow-Origin")); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestRouter_SolveRateLimited(t *testing.T) {
	s := buildRouterForTest(0.001).Build(":0")
	hdr := ut.Header{Key: "Content-Type", Value: "application/json"}

	w := ut.PerformRequest(s.Engine, "POST", "/api/solve", body(`{"query":"q"}`), hdr)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("first solve status = %d, want 200", got)
	}
	w = ut.PerformRequest(s.Engine, "POST", "/api/solve", body(`{"query":"q"}`), hdr)
	if got := w.Result().StatusCode(); got != 429 {
		t.Fatalf("second solve status = %d, want 429", got)
	}
}
