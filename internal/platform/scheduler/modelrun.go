package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fallguard/fallguard/internal/platform/taskqueue"
)

// ModelRunPayload identifies one async model invocation: the assessment the
// result attaches to and the recorded input the script consumes.
type ModelRunPayload struct {
	AssessmentID uuid.UUID `json:"assessment_id"`
	InputPath    string    `json:"input_path"`
}

// ModelRunWorker shells out to an external analysis script. A run that
// exceeds the timeout is killed and surfaces as a normal task failure, so
// it rides the standard retry ladder.
type ModelRunWorker struct {
	scriptPath string
	timeout    time.Duration
}

func NewModelRunWorker(scriptPath string, timeout time.Duration) *ModelRunWorker {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ModelRunWorker{scriptPath: scriptPath, timeout: timeout}
}

// Handle is the taskqueue handler for model-run tasks.
func (w *ModelRunWorker) Handle(ctx context.Context, task *taskqueue.Task) error {
	if w.scriptPath == "" {
		return fmt.Errorf("model run script not configured")
	}
	var payload ModelRunPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode model-run payload: %w", err)
	}
	if payload.InputPath == "" {
		return fmt.Errorf("model run for assessment %s has no input path", payload.AssessmentID)
	}

	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, w.scriptPath,
		"--assessment", payload.AssessmentID.String(),
		"--input", payload.InputPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("model run timed out after %s", w.timeout)
		}
		return fmt.Errorf("model run failed: %w: %s", err, truncate(out, 512))
	}

	log.Info().Str("assessment_id", payload.AssessmentID.String()).
		Int("output_bytes", len(out)).Msg("model run finished")
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
