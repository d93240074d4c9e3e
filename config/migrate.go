// Copyright 2025 The Chorus Authors
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

package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/viper"
)

// MigrateIfNeeded translates the legacy workflow-integration format
// (analyzer_model / worker_models / synthesizer_model) into the plan-JSON
// form. The original file is preserved as a sibling backup before the
// migrated document is written back. Files already in the current format are
// left untouched, as are files that do not parse (Load reports those).
func MigrateIfNeeded(path string) error {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil
	}

	wi := &cfg.WorkflowIntegration
	legacy := wi.AnalyzerModel != "" || len(wi.WorkerModels) > 0 || wi.SynthesizerModel != ""
	if wi.JSON != "" || !legacy {
		return nil
	}

	if wi.AnalyzerModel == "" || wi.SynthesizerModel == "" || len(wi.WorkerModels) == 0 {
		return fmt.Errorf("legacy workflow-integration in %s is incomplete: analyzer_model, worker_models, and synthesizer_model are all required", path)
	}

	plan := &WorkflowPlan{
		Analyzer:    &ModelRef{Model: wi.AnalyzerModel},
		Synthesizer: &ModelRef{Model: wi.SynthesizerModel},
	}
	for _, model := range wi.WorkerModels {
		plan.Workers = append(plan.Workers, WorkerNode{Ref: &ModelRef{Model: model}})
	}

	planJSON, err := plan.ToJSON()
	if err != nil {
		return err
	}

	backupPath, err := backupConfigFile(path)
	if err != nil {
		return err
	}

	depth := wi.NestedWorkerDepth
	if depth < 1 {
		depth = 1
	}

	out := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	out.SetConfigType("toml")
	out.Set("server", map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	})

	models := make([]map[string]interface{}, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		entry := map[string]interface{}{
			"name":     m.Name,
			"api_base": m.APIBase,
			"api_key":  m.APIKey,
		}
		if m.Temperature != nil {
			entry["temperature"] = *m.Temperature
		}
		if m.AutoTemperature {
			entry["auto_temperature"] = true
		}
		models = append(models, entry)
	}
	out.Set("model", models)

	out.Set("workflow-integration", map[string]interface{}{
		"nested_worker_depth": depth,
		"json":                planJSON,
	})

	workflow := map[string]interface{}{
		"timeouts": map[string]interface{}{
			"analyzer_timeout_secs":    cfg.Workflow.Timeouts.AnalyzerTimeoutSecs,
			"worker_timeout_secs":      cfg.Workflow.Timeouts.WorkerTimeoutSecs,
			"synthesizer_timeout_secs": cfg.Workflow.Timeouts.SynthesizerTimeoutSecs,
		},
	}
	if cfg.Workflow.Timeouts.SelectorTimeoutSecs > 0 {
		workflow["timeouts"].(map[string]interface{})["selector_timeout_secs"] = cfg.Workflow.Timeouts.SelectorTimeoutSecs
	}
	if len(cfg.Workflow.Domains) > 0 {
		domains := make(map[string]interface{}, len(cfg.Workflow.Domains))
		for host, override := range cfg.Workflow.Domains {
			entry := map[string]interface{}{}
			if override.AnalyzerTimeoutSecs != nil {
				entry["analyzer_timeout_secs"] = *override.AnalyzerTimeoutSecs
			}
			if override.WorkerTimeoutSecs != nil {
				entry["worker_timeout_secs"] = *override.WorkerTimeoutSecs
			}
			if override.SelectorTimeoutSecs != nil {
				entry["selector_timeout_secs"] = *override.SelectorTimeoutSecs
			}
			if override.SynthesizerTimeoutSecs != nil {
				entry["synthesizer_timeout_secs"] = *override.SynthesizerTimeoutSecs
			}
			domains[host] = entry
		}
		workflow["domains"] = domains
	}
	out.Set("workflow", workflow)

	if cfg.Reflection != nil {
		out.Set("reflection", map[string]interface{}{
			"max_iterations":        cfg.Reflection.MaxIterations,
			"convergence_threshold": cfg.Reflection.ConvergenceThreshold,
			"model":                 cfg.Reflection.Model,
			"timeout_secs":          cfg.Reflection.TimeoutSecs,
		})
	}

	if err := out.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write migrated config to %s (backup at %s): %w", path, backupPath, err)
	}

	return nil
}

func backupConfigFile(path string) (string, error) {
	backupPath := path + ".bak"
	if _, err := os.Stat(backupPath); err == nil {
		backupPath = fmt.Sprintf("%s.bak.%d", path, time.Now().Unix())
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to create config backup %s: %w", backupPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to back up config to %s: %w", backupPath, err)
	}

	return backupPath, nil
}
