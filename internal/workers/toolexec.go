package workers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"scribe/internal/queue"
	"scribe/internal/services"
)

var commandContext = exec.CommandContext

// toolEvent is one NDJSON line emitted by a stage tool. Tools stream progress
// events while running and finish with a single result event.
type toolEvent struct {
	Event   string          `json:"event"`
	Percent float64         `json:"percent"`
	Result  json.RawMessage `json:"result"`
}

// expandTemplate splits a command template into argv and substitutes {name}
// placeholders. Templates are whitespace-split; arguments with embedded
// spaces are not supported.
func expandTemplate(template string, vars map[string]string) []string {
	fields := strings.Fields(template)
	for i, field := range fields {
		for key, value := range vars {
			field = strings.ReplaceAll(field, "{"+key+"}", value)
		}
		fields[i] = field
	}
	return fields
}

func runTool(ctx context.Context, stage, template string, vars map[string]string, progress Progress) (json.RawMessage, error) {
	argv := expandTemplate(template, vars)
	if len(argv) == 0 {
		return nil, services.Wrap(
			services.ErrConfiguration, stage, "run tool",
			"No command template configured", nil)
	}

	cmd := commandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(
			services.ErrExternalTool, stage, "run tool",
			"Failed attaching to tool output", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(
			services.ErrExternalTool, stage, "run tool",
			fmt.Sprintf("Failed starting %s", argv[0]), err)
	}

	var result json.RawMessage
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var event toolEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		switch event.Event {
		case "progress":
			if progress != nil {
				progress(event.Percent)
			}
		case "result":
			result = append(json.RawMessage(nil), event.Result...)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return nil, services.Wrap(
			services.ErrExternalTool, stage, "run tool",
			"Failed reading tool output", err)
	}

	if err := cmd.Wait(); err != nil {
		return nil, services.Wrap(
			services.ErrExternalTool, stage, "run tool",
			fmt.Sprintf("%s exited with an error", argv[0]), err)
	}
	if len(result) == 0 {
		return nil, services.Wrap(
			services.ErrExternalTool, stage, "run tool",
			fmt.Sprintf("%s produced no result event", argv[0]), nil)
	}
	return result, nil
}

// CommandFetcher downloads media by invoking a configured command template.
type CommandFetcher struct {
	Template string
}

// Fetch runs the fetch tool with {id} and {dest} substituted.
func (f *CommandFetcher) Fetch(ctx context.Context, externalID, destDir string, progress Progress) (queue.FetchOutput, error) {
	result, err := runTool(ctx, "fetch", f.Template, map[string]string{
		"id":   externalID,
		"dest": destDir,
	}, progress)
	if err != nil {
		return queue.FetchOutput{}, err
	}
	var out queue.FetchOutput
	if err := json.Unmarshal(result, &out); err != nil {
		return queue.FetchOutput{}, services.Wrap(
			services.ErrExternalTool, "fetch", "decode result",
			"Fetch tool result was not valid JSON", err)
	}
	if out.LocalPath == "" {
		return queue.FetchOutput{}, services.Wrap(
			services.ErrExternalTool, "fetch", "decode result",
			"Fetch tool reported no local path", nil)
	}
	return out, nil
}

// CommandTransformer normalizes media by invoking a configured command
// template.
type CommandTransformer struct {
	Template string
}

// Transform runs the transform tool with {input} and {dest} substituted.
func (t *CommandTransformer) Transform(ctx context.Context, sourcePath, destDir string, progress Progress) (queue.TransformOutput, error) {
	result, err := runTool(ctx, "transform", t.Template, map[string]string{
		"input": sourcePath,
		"dest":  destDir,
	}, progress)
	if err != nil {
		return queue.TransformOutput{}, err
	}
	var out queue.TransformOutput
	if err := json.Unmarshal(result, &out); err != nil {
		return queue.TransformOutput{}, services.Wrap(
			services.ErrExternalTool, "transform", "decode result",
			"Transform tool result was not valid JSON", err)
	}
	if out.NormalizedPath == "" {
		return queue.TransformOutput{}, services.Wrap(
			services.ErrExternalTool, "transform", "decode result",
			"Transform tool reported no output path", nil)
	}
	return out, nil
}

// CommandInferencer runs speech inference through a configured command
// template, with an optional probe command for availability checks.
type CommandInferencer struct {
	Template      string
	ProbeTemplate string
}

// Available runs the probe command. A missing probe template means the
// backend is assumed ready.
func (i *CommandInferencer) Available(ctx context.Context) error {
	if strings.TrimSpace(i.ProbeTemplate) == "" {
		return nil
	}
	argv := expandTemplate(i.ProbeTemplate, nil)
	cmd := commandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return services.Wrap(
			services.ErrUnavailable, "infer", "probe backend",
			fmt.Sprintf("Inference backend not ready: %s", detail), err)
	}
	return nil
}

// Infer runs the inference tool with {input}, {language}, {tier}, and
// {duration} substituted.
func (i *CommandInferencer) Infer(ctx context.Context, req InferRequest, progress Progress) (queue.InferOutput, error) {
	result, err := runTool(ctx, "infer", i.Template, map[string]string{
		"input":    req.AudioPath,
		"language": req.Language,
		"tier":     string(req.Tier),
		"duration": strconv.FormatFloat(req.DurationSeconds, 'f', -1, 64),
	}, progress)
	if err != nil {
		return queue.InferOutput{}, err
	}
	var out queue.InferOutput
	if err := json.Unmarshal(result, &out); err != nil {
		return queue.InferOutput{}, services.Wrap(
			services.ErrExternalTool, "infer", "decode result",
			"Inference tool result was not valid JSON", err)
	}
	return out, nil
}

var (
	_ Fetcher     = (*CommandFetcher)(nil)
	_ Transformer = (*CommandTransformer)(nil)
	_ Inferencer  = (*CommandInferencer)(nil)
)
