// SPDX-License-Identifier: MIT

// Package decode opens media containers and produces raw RGB24 frames.
// It shells out to ffprobe/ffmpeg; the rest of the pipeline only sees the
// Source interface, so tests and alternative decoders can stand in.
package decode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Binaries used by this package. Overridable for tests and for systems
// where ffmpeg lives outside PATH.
var (
	FFprobePath = "ffprobe"
	FFmpegPath  = "ffmpeg"
)

var ErrNoVideoStream = errors.New("no video stream in container")

// Metadata describes the first video stream of a container.
type Metadata struct {
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration
}

// FrameInterval returns the native frame period of the stream.
func (m Metadata) FrameInterval() time.Duration {
	if m.FPS <= 0 {
		return time.Second / 30
	}
	return time.Duration(float64(time.Second) / m.FPS)
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads container metadata without decoding past the header. The
// caller bounds the call with ctx; a stuck probe counts as a decode
// failure upstream.
func Probe(ctx context.Context, path string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,duration",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(po.Streams) == 0 {
		return Metadata{}, ErrNoVideoStream
	}

	s := po.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Metadata{}, fmt.Errorf("%w: zero dimensions", ErrNoVideoStream)
	}

	md := Metadata{Width: s.Width, Height: s.Height}

	md.FPS = parseRate(s.AvgFrameRate)
	if md.FPS <= 0 {
		md.FPS = parseRate(s.RFrameRate)
	}
	if md.FPS <= 0 {
		md.FPS = 30
	}

	if d := parseSeconds(s.Duration); d > 0 {
		md.Duration = d
	} else if d := parseSeconds(po.Format.Duration); d > 0 {
		md.Duration = d
	}

	return md, nil
}

// parseRate parses ffprobe's fractional rate notation ("30000/1001").
func parseRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
