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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var apiURL string

func apiBaseURL() string {
	if apiURL != "" {
		return apiURL
	}
	if u := os.Getenv("AGENT_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(10 * time.Minute).
		SetHeader("Content-Type", "application/json")
}

func getRun(runID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/runs/" + runID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/runs/%s: %s", runID, resp.String())
	}
	return out, nil
}

func listRuns(status string, limit int) ([]map[string]interface{}, error) {
	var out struct {
		Runs []map[string]interface{} `json:"runs"`
	}
	req := newClient().R().SetResult(&out)
	if status != "" {
		req.SetQueryParam("status", status)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Get("/api/runs")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/runs: %s", resp.String())
	}
	return out.Runs, nil
}

func submitQuery(body map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/api/solve")
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted:
		return out, nil
	default:
		return out, fmt.Errorf("POST /api/solve: %s", resp.String())
	}
}

func remoteTools() ([]map[string]interface{}, error) {
	var out struct {
		Tools []map[string]interface{} `json:"tools"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/tools")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/tools: %s", resp.String())
	}
	return out.Tools, nil
}

// runsCmd 通过 HTTP API 访问运行中的服务
func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and submit runs on a running API server",
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default $AGENT_API_URL or http://localhost:8080)")

	cmd.AddCommand(&cobra.Command{
		Use:   "get <run_id>",
		Short: "Show one run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := getRun(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(run))
			return nil
		},
	})

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List run records",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := listRuns(status, limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", r["run_id"], r["status"], r["pid"], r["stop_reason"])
			}
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of runs")
	cmd.AddCommand(list)

	var (
		async    bool
		maxSteps int
		pid      string
	)
	submit := &cobra.Command{
		Use:   "submit <query>",
		Short: "Submit a query to POST /api/solve",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"query": strings.Join(args, " "), "async": async}
			if maxSteps > 0 {
				body["max_steps"] = maxSteps
			}
			if pid != "" {
				body["pid"] = pid
			}
			out, err := submitQuery(body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(out))
			return nil
		},
	}
	submit.Flags().BoolVar(&async, "async", false, "return immediately with the run id")
	submit.Flags().IntVar(&maxSteps, "max-steps", 0, "step budget")
	submit.Flags().StringVar(&pid, "pid", "", "problem id")
	cmd.AddCommand(submit)

	cmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List the tools registered on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := remoteTools()
			if err != nil {
				return err
			}
			for _, t := range tools {
				fmt.Fprintln(cmd.OutOrStdout(), t["tool_name"])
			}
			return nil
		},
	})
	return cmd
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
