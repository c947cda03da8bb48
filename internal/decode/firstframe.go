// SPDX-License-Identifier: MIT

package decode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/kschult4/Halloween-2025/internal/frame"
)

// FirstFrame decodes exactly one frame from path. Used to cache a poster
// frame per asset at library scan and to warm a source inside the preload
// budget without decoding further into the stream.
func FirstFrame(ctx context.Context, path string, md Metadata) (*frame.Frame, error) {
	cmd := exec.CommandContext(ctx, FFmpegPath,
		"-v", "error",
		"-i", path,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-an",
		"pipe:1",
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode first frame of %s: %w", path, err)
	}

	size := frame.Size(md.Width, md.Height)
	if out.Len() < size {
		return nil, fmt.Errorf("first frame of %s truncated: got %d of %d bytes", path, out.Len(), size)
	}

	f := frame.New(md.Width, md.Height)
	copy(f.Data, out.Bytes()[:size])
	return f, nil
}
