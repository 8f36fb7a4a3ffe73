// SPDX-License-Identifier: MIT

package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mediafab/vidforge/internal/fault"
)

const probeTimeout = 30 * time.Second

func probeError(path, detail string, err error) error {
	if detail != "" {
		detail = path + ": " + detail
	} else {
		detail = path
	}
	return &fault.Error{Kind: fault.KindCollaborator, Op: "media.probe", Detail: detail, Err: err}
}

// ProbeDuration measures a media file's duration in seconds via ffprobe.
// The pipeline never trusts estimates; every produced file is measured.
func (e *Engine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffprobe, // #nosec G204 -- configured binary
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return 0, probeError(path, detail, err)
	}

	d, err := parseProbeDuration(string(out))
	if err != nil {
		return 0, probeError(path, "", err)
	}
	return d, nil
}

func parseProbeDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, errors.New("no duration in probe output")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %g", d)
	}
	return d, nil
}
