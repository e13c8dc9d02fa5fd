package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/constants"
)

// ExecParser runs a decoder program that prints the decoded replay as JSON
// on stdout. Live mode passes --live before the path.
type ExecParser struct {
	Command []string
	Env     []string
	logger  zerolog.Logger
}

func NewExecParser(command []string, logger zerolog.Logger) *ExecParser {
	return &ExecParser{
		Command: command,
		logger:  logger,
	}
}

func (p *ExecParser) Parse(ctx context.Context, path string, mode Mode) (*Decoded, error) {
	if len(p.Command) == 0 {
		return nil, errors.New("no replay decoder configured")
	}
	ctx, cancel := context.WithTimeout(ctx, constants.ParseTimeout)
	defer cancel()

	args := append([]string{}, p.Command[1:]...)
	if mode == Live {
		args = append(args, "--live")
	}
	args = append(args, path)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("decode %s: %w: %s", path, err, msg)
		}
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	var decoded Decoded
	if err := json.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		return nil, fmt.Errorf("decode %s: invalid decoder output: %w", path, err)
	}
	p.logger.Debug().Str("path", path).Str("mode", mode.String()).Msg("replay decoded")
	return &decoded, nil
}
