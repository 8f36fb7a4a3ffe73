// SPDX-License-Identifier: MIT

// Package vcodec picks the video encoder for the final export: a hardware
// encoder when the accelerator reports enough capability and the local ffmpeg
// build advertises it, libx264 otherwise. The choice is a preference only;
// the export stage retries once with libx264 if the hardware path fails.
package vcodec

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/log"
)

const (
	CodecNVENC        = "h264_nvenc"
	CodecVideoToolbox = "h264_videotoolbox"
	CodecSoftware     = "libx264"
)

// Selection is the encoder hint handed to the export stage.
type Selection struct {
	Codec   string
	Preset  string
	CRF     int
	HWAccel string // "cuda", "videotoolbox" or "" for software
}

// Hardware reports whether the selection names a hardware encoder.
func (s Selection) Hardware() bool {
	return s.HWAccel != ""
}

// Software is the always-available fallback selection.
func Software(preset string) Selection {
	if preset == "" {
		preset = "medium"
	}
	return Selection{Codec: CodecSoftware, Preset: preset, CRF: 23}
}

// Detector probes the local hardware once and maps it to an encoder
// selection. The exported fields default to real probes; tests inject fakes.
type Detector struct {
	// FFmpegBin is the encoder binary asked for its encoder list.
	FFmpegBin string
	// NvidiaSMIBin is the tool queried for CUDA capability.
	NvidiaSMIBin string
	// ListEncoders returns the output of `ffmpeg -encoders`.
	ListEncoders func(ctx context.Context) (string, error)
	// QueryComputeCap returns the CUDA compute capability of GPU 0.
	QueryComputeCap func(ctx context.Context) (float64, error)

	logger zerolog.Logger
	goos   string
	goarch string

	once  sync.Once
	probe probeResult
}

type probeResult struct {
	encoders   string
	computeCap float64
	hasCUDA    bool
}

// NewDetector returns a detector probing the given ffmpeg and nvidia-smi
// binaries. Empty paths fall back to the bare command names.
func NewDetector(ffmpegBin, nvidiaSMIBin string) *Detector {
	return &Detector{
		FFmpegBin:    ffmpegBin,
		NvidiaSMIBin: nvidiaSMIBin,
		logger:       log.WithComponent("vcodec"),
		goos:         runtime.GOOS,
		goarch:       runtime.GOARCH,
	}
}

// Select maps the probed hardware to an encoder. softwarePreset is the
// quality-mapped libx264 preset used when no hardware path qualifies;
// hardware selections carry their own fixed preset and CRF.
func (d *Detector) Select(ctx context.Context, softwarePreset string) Selection {
	d.once.Do(func() { d.probe = d.runProbe(ctx) })
	p := d.probe

	if p.hasCUDA && strings.Contains(p.encoders, CodecNVENC) {
		switch {
		case p.computeCap >= 7.0:
			// Turing and newer sustain the faster preset at better quality.
			return d.selected(Selection{Codec: CodecNVENC, Preset: "fast", CRF: 20, HWAccel: "cuda"})
		case p.computeCap >= 6.0:
			return d.selected(Selection{Codec: CodecNVENC, Preset: "medium", CRF: 23, HWAccel: "cuda"})
		}
		d.logger.Debug().
			Float64("compute_cap", p.computeCap).
			Msg("GPU below nvenc capability floor, using software encoder")
	}

	if d.goos == "darwin" && d.goarch == "arm64" && strings.Contains(p.encoders, CodecVideoToolbox) {
		return d.selected(Selection{Codec: CodecVideoToolbox, Preset: "medium", CRF: 23, HWAccel: "videotoolbox"})
	}

	return d.selected(Software(softwarePreset))
}

func (d *Detector) selected(s Selection) Selection {
	d.logger.Info().
		Str("codec", s.Codec).
		Str("preset", s.Preset).
		Int("crf", s.CRF).
		Msg("video encoder selected")
	return s
}

func (d *Detector) runProbe(ctx context.Context) probeResult {
	var p probeResult

	list := d.ListEncoders
	if list == nil {
		list = d.listEncoders
	}
	encoders, err := list(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("encoder listing failed, assuming software only")
		return p
	}
	p.encoders = encoders

	query := d.QueryComputeCap
	if query == nil {
		query = d.queryComputeCap
	}
	if capability, err := query(ctx); err == nil {
		p.hasCUDA = true
		p.computeCap = capability
		d.logger.Debug().Float64("compute_cap", capability).Msg("CUDA device detected")
	}
	return p
}

func (d *Detector) listEncoders(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	bin := d.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	// #nosec G204 -- encoder binary path comes from configuration
	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-encoders").Output()
	return string(out), err
}

// queryComputeCap asks nvidia-smi for GPU 0's compute capability.
// Any failure means no usable CUDA device.
func (d *Detector) queryComputeCap(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	bin := d.NvidiaSMIBin
	if bin == "" {
		bin = "nvidia-smi"
	}
	// #nosec G204 -- tool path comes from configuration
	out, err := exec.CommandContext(ctx, bin,
		"--query-gpu=compute_cap", "--format=csv,noheader").Output()
	if err != nil {
		return 0, err
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strconv.ParseFloat(strings.TrimSpace(first), 64)
}
