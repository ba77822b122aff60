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
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agent-platform/internal/app"
	"agent-platform/internal/app/worker"
	"agent-platform/pkg/config"
	"agent-platform/pkg/tracing"
	"agent-platform/pkg/utils"
)

func main() {
	configPath := flag.String("config", os.Getenv("AGENT_CONFIG"), "config file")
	dataFile := flag.String("data", "", "dataset JSON file (default batch.data_file)")
	score := flag.Bool("score", true, "score results after the batch finishes")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	bootstrap, err := app.NewBootstrap(context.Background(), cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer bootstrap.Close()

	if tc := cfg.Monitoring.Tracing; tc.Enable && tc.ExportEndpoint != "" {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    utils.CoalesceString(tc.ServiceName, "agent-worker"),
			ExportEndpoint: tc.ExportEndpoint,
			Insecure:       tc.Insecure,
		})
		if err != nil {
			log.Printf("初始化链路追踪失败: %v", err)
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	// 中断信号停止派发新题目，已开始的会话在下一个步边界结束
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sum, rep, err := worker.NewApp(bootstrap).RunBatch(ctx, worker.BatchOptions{DataFile: *dataFile, Score: *score})
	if sum != nil {
		fmt.Printf("total=%d solved=%d skipped=%d failed=%d duration=%s\n", sum.Total, sum.Solved, sum.Skipped, sum.Failed, sum.Duration)
	}
	if rep != nil {
		fmt.Printf("%s accuracy: %.2f%% (%d/%d)\n", rep.ResponseType, rep.Accuracy, rep.Correct, rep.Total)
	}
	if err != nil {
		log.Printf("批量运行失败: %v", err)
		os.Exit(1)
	}
}
