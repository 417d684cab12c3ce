package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starfleetai/bridge/pkg/models"
)

// webBrowsingArgs are the arguments of sfai_web_browsing.
type webBrowsingArgs struct {
	Objective string `json:"objective"`
}

// browseWeb runs a browsing session for the task and returns its findings as
// tool output text. A session that fails to reach the objective is reported
// to the model, not escalated: the dialog decides what to do next.
func (x *Executor) browseWeb(
	ctx context.Context,
	task *models.Task,
	model *models.Model,
	apiKey string,
	arguments string,
) (string, error) {
	if x.browser == nil {
		return "Web browsing is not available", nil
	}

	var args webBrowsingArgs
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("parsing %s arguments: %w", toolWebBrowsing, err)
		}
	}
	if args.Objective == "" {
		return "", errors.New("web browsing objective is required")
	}

	workdir := task.Workdir(x.workdirRoot)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return "", fmt.Errorf("creating task workdir: %w", err)
	}

	slog.Info("Starting browsing session", "task_id", task.ID, "objective", args.Objective)
	output, err := x.browser.Browse(ctx, args.Objective, workdir, model, apiKey)
	if err != nil {
		return "", fmt.Errorf("browsing session: %w", err)
	}
	return output, nil
}
