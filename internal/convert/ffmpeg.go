package convert

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"fileforge/internal/faults"
)

// FFmpegConverter transcodes audio and video by shelling out to ffmpeg with
// staged temp files. Progress is inferred from the time= markers ffmpeg
// prints on stderr.
type FFmpegConverter struct {
	binary  string
	tempDir string
	timeout time.Duration
}

// NewFFmpegConverter returns a converter that runs the given ffmpeg binary
// with a per-conversion timeout.
func NewFFmpegConverter(binary, tempDir string, timeout time.Duration) *FFmpegConverter {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegConverter{binary: binary, tempDir: tempDir, timeout: timeout}
}

var audioCodecs = map[string][]string{
	"mp3":  {"-codec:a", "libmp3lame"},
	"aac":  {"-codec:a", "aac"},
	"ogg":  {"-codec:a", "libvorbis"},
	"flac": {"-codec:a", "flac"},
	"wav":  {"-codec:a", "pcm_s16le"},
}

var videoCodecs = map[string][]string{
	"mp4":  {"-codec:v", "libx264", "-codec:a", "aac"},
	"webm": {"-codec:v", "libvpx-vp9", "-codec:a", "libopus"},
	"avi":  {"-codec:v", "mpeg4"},
	"mkv":  {"-codec:v", "libx264", "-codec:a", "aac"},
	"gif":  {"-vf", "fps=10,scale=320:-1:flags=lanczos"},
}

func (c *FFmpegConverter) Convert(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress = ensureProgress(progress)

	args, err := buildCodecArgs(req)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, req, args, progress)
}

func buildCodecArgs(req Request) ([]string, error) {
	var args []string

	if resolution, ok := req.Options["resolution"]; ok {
		parts := strings.SplitN(resolution, "x", 2)
		if len(parts) != 2 {
			return nil, faults.Wrap(faults.ErrValidation, "convert", "ffmpeg", "invalid resolution option: "+resolution, nil)
		}
		args = append(args, "-vf", fmt.Sprintf("scale=%s:%s", parts[0], parts[1]))
	}

	if _, audio := audioCodecs[req.TargetFormat]; audio {
		if bitrate, ok := req.Options["bitrate"]; ok {
			args = append(args, "-b:a", bitrate)
		}
		if sampleRate, ok := req.Options["sampleRate"]; ok {
			args = append(args, "-ar", sampleRate)
		}
		if channels, ok := req.Options["channels"]; ok {
			args = append(args, "-ac", channels)
		}
		args = append(args, audioCodecs[req.TargetFormat]...)
		return args, nil
	}

	if bitrate, ok := req.Options["bitrate"]; ok {
		args = append(args, "-b:v", bitrate)
	}
	if fps, ok := req.Options["fps"]; ok {
		args = append(args, "-r", fps)
	}
	if codec, ok := req.Options["codec"]; ok {
		args = append(args, "-codec:v", codec)
		return args, nil
	}
	if defaults, ok := videoCodecs[req.TargetFormat]; ok {
		args = append(args, defaults...)
	}
	return args, nil
}

var progressTimePattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+)`)

func (c *FFmpegConverter) run(ctx context.Context, req Request, codecArgs []string, progress ProgressFunc) ([]byte, error) {
	workDir, cleanup, err := c.stageDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	inputPath := filepath.Join(workDir, "input."+req.SourceFormat)
	outputPath := filepath.Join(workDir, "output."+req.TargetFormat)
	if err := os.WriteFile(inputPath, req.Data, 0o644); err != nil {
		return nil, fmt.Errorf("stage ffmpeg input: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append([]string{"-i", inputPath, "-y", "-hide_banner"}, codecArgs...)
	args = append(args, outputPath)

	cmd := exec.CommandContext(ctx, c.binary, args...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "ffmpeg", "start ffmpeg", err)
	}

	var (
		tail     []string
		reported float64
	)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
		if progressTimePattern.MatchString(line) {
			if reported += 5; reported > 100 {
				reported = 100
			}
			progress(reported)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, faults.Wrap(faults.ErrTimeout, "convert", "ffmpeg", "conversion timed out", ctx.Err())
		}
		return nil, faults.Wrap(faults.ErrConversion, "convert", "ffmpeg",
			fmt.Sprintf("%v: %s", err, strings.TrimSpace(strings.Join(tail, "\n"))), nil)
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "ffmpeg", "read output", err)
	}
	progress(100)
	return out, nil
}

func (c *FFmpegConverter) stageDir() (string, func(), error) {
	base := c.tempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", nil, fmt.Errorf("create temp base: %w", err)
	}
	dir, err := os.MkdirTemp(base, "ffmpeg-")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
