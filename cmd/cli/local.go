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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"agent-platform/internal/agent/planner"
	"agent-platform/internal/app/api"
	"agent-platform/internal/app/worker"
	"agent-platform/internal/runtime/jobstore"
	"agent-platform/internal/scoring"
	"agent-platform/pkg/redaction"
)

func solveCmd() *cobra.Command {
	var (
		q      planner.Query
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "solve <query>",
		Short: "Run one planning session locally",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			b, err := loadBootstrap(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			q.Text = strings.Join(args, " ")
			if q.PID != "" {
				if err := jobstore.ValidateKey(q.PID); err != nil {
					return err
				}
			}
			run := &jobstore.Run{ID: uuid.NewString(), Status: jobstore.StatusRunning, Request: q}
			if err := b.Store.Create(ctx, run); err != nil {
				return err
			}
			res, err := b.Planner.Run(ctx, q)
			if err != nil {
				run.Status, run.Error = jobstore.StatusFailed, err.Error()
			} else {
				run.Status, run.Result = jobstore.StatusCompleted, res
			}
			if uerr := b.Store.Update(context.WithoutCancel(ctx), run); uerr != nil {
				b.Logger.Warn("save run failed", "run_id", run.ID, "error", uerr)
			}
			if err != nil {
				return err
			}
			if asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(run))
				return nil
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&q.PID, "pid", "", "problem id used as the record key")
	cmd.Flags().StringVar(&q.ImagePath, "image", "", "image file attached to the query")
	cmd.Flags().IntVar(&q.MaxSteps, "max-steps", 0, "step budget (0 uses agent.max_steps)")
	cmd.Flags().DurationVar(&q.MaxTime, "max-time", 0, "wall-clock budget (0 uses agent.max_time)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run record as JSON")
	return cmd
}

func printResult(w io.Writer, res *planner.Result) {
	fmt.Fprintf(w, "session:   %s\n", res.SessionID)
	fmt.Fprintf(w, "steps:     %d (%s, %.2fs)\n", res.StepCount, res.StopReason, res.ExecutionTime)
	for _, st := range res.Memory {
		fmt.Fprintf(w, "  [%d] %s: %s\n", st.Index, st.ToolName, truncate(st.Result.String(), 200))
	}
	if res.BaseResponse != "" {
		fmt.Fprintf(w, "\n== base response ==\n%s\n", res.BaseResponse)
	}
	if res.FinalOutput != "" {
		fmt.Fprintf(w, "\n== final output ==\n%s\n", res.FinalOutput)
	}
	if res.DirectOutput != "" {
		fmt.Fprintf(w, "\n== direct output ==\n%s\n", res.DirectOutput)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func batchCmd() *cobra.Command {
	var opts worker.BatchOptions
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Solve every problem in a dataset concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			b, err := loadBootstrap(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			sum, rep, err := worker.NewApp(b).RunBatch(ctx, opts)
			if sum != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "total=%d solved=%d skipped=%d failed=%d duration=%s\n",
					sum.Total, sum.Solved, sum.Skipped, sum.Failed, sum.Duration.Round(time.Millisecond))
			}
			if rep != nil {
				printReport(cmd.OutOrStdout(), rep)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.DataFile, "data", "d", "", "dataset JSON file (default batch.data_file)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "parallel sessions (default batch.concurrency)")
	cmd.Flags().BoolVar(&opts.SkipExisting, "skip-existing", false, "skip problems that already have a completed run")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "per-problem step budget")
	cmd.Flags().DurationVar(&opts.MaxTime, "max-time", 0, "per-problem wall-clock budget")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "summary and report directory (default batch.output_dir)")
	cmd.Flags().BoolVar(&opts.Score, "score", false, "score the results after the batch finishes")
	return cmd
}

func scoreCmd() *cobra.Command {
	var opts worker.ScoreOptions
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score stored results against the dataset answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			b, err := loadBootstrap(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			rep, err := worker.NewApp(b).Score(ctx, opts)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.DataFile, "data", "d", "", "dataset JSON file (default batch.data_file)")
	cmd.Flags().StringVar(&opts.ResponseType, "response-type", "", "final_output | direct_output | base_response")
	cmd.Flags().IntVar(&opts.MaxWorkers, "max-workers", 0, "parallel scoring workers")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "report directory (default batch.output_dir)")
	return cmd
}

func printReport(w io.Writer, rep *scoring.Report) {
	fmt.Fprintf(w, "%s accuracy: %.2f%% (%d/%d)\n", rep.ResponseType, rep.Accuracy, rep.Correct, rep.Total)
	if len(rep.WrongPIDs) > 0 {
		fmt.Fprintf(w, "wrong: %s\n", strings.Join(rep.WrongPIDs, ", "))
	}
	if len(rep.Missing) > 0 {
		fmt.Fprintf(w, "missing: %s\n", strings.Join(rep.Missing, ", "))
	}
	if s := rep.StepStats; s != nil {
		fmt.Fprintf(w, "steps avg=%.2f max=%d  time avg=%.2fs max=%.2fs\n", s.AvgSteps, s.MaxSteps, s.AvgTime, s.MaxTime)
	}
	for name, ratio := range rep.ToolUsage {
		fmt.Fprintf(w, "tool %s: %.3f\n", name, ratio)
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the planner",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			w := cmd.OutOrStdout()
			for _, m := range b.Tools.Metadata() {
				fmt.Fprintf(w, "%-36s %s\n", m.Name, truncate(m.Description, 80))
			}
			for _, name := range b.Missing {
				fmt.Fprintf(w, "%-36s (unavailable: missing credentials)\n", name)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display current configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(redactConfig(cfg)))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})
	return cmd
}

// redactConfig returns a JSON-safe copy with secrets masked.
func redactConfig(cfg any) any {
	out, err := redaction.NewEngine(redaction.SecretPolicy()).Redact(cfg)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}

func serveCmd() *cobra.Command {
	var (
		addr  string
		rps   float64
		burst int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBootstrap(context.Background())
			if err != nil {
				return err
			}
			application, err := api.NewApp(b, api.Options{SolveRPS: rps, SolveBurst: burst})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = fmt.Sprintf("%s:%d", b.Config.API.Host, b.Config.API.Port)
			}
			errCh := make(chan error, 1)
			go func() { errCh <- application.Run(addr) }()

			ctx, cancel := signalContext()
			defer cancel()
			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancelShutdown()
			return application.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default api.host:api.port)")
	cmd.Flags().Float64Var(&rps, "solve-rps", 0, "rate limit for POST /api/solve, 0 disables")
	cmd.Flags().IntVar(&burst, "solve-burst", 1, "burst size for the solve rate limit")
	return cmd
}
