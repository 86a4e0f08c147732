package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoMediaURL is returned when the extraction tool produced no usable URL.
var ErrNoMediaURL = errors.New("no media url")

// Resolver translates a stream page into a directly fetchable media URL.
// Resolved URLs are short-lived: callers must resolve fresh before every
// capture start and before every rotation restart.
type Resolver interface {
	Resolve(ctx context.Context, model string) (string, error)
}

// CommandResolver shells out to an external extraction tool (yt-dlp
// compatible: `<cmd> --get-url <page>`), taking the first line of stdout if
// it looks like a URL.
type CommandResolver struct {
	Cmd     string
	BaseURL string
	Timeout time.Duration
	log     *zap.Logger
}

// NewCommandResolver creates a resolver invoking cmd against baseURL pages.
func NewCommandResolver(cmd, baseURL string, timeout time.Duration, log *zap.Logger) *CommandResolver {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &CommandResolver{Cmd: cmd, BaseURL: baseURL, Timeout: timeout, log: log}
}

// Resolve runs the tool with a deadline and returns the media URL.
func (r *CommandResolver) Resolve(ctx context.Context, model string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	pageURL := r.BaseURL + "/" + model + "/"
	cmd := exec.CommandContext(ctx, r.Cmd, "--get-url", pageURL)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w", r.Cmd, err)
	}

	line, _, _ := strings.Cut(strings.TrimSpace(stdout.String()), "\n")
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "http") {
		return "", ErrNoMediaURL
	}
	return line, nil
}
