package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediaforge/internal/compress"
	"github.com/maauso/mediaforge/internal/config"
	"github.com/maauso/mediaforge/internal/engine"
	"github.com/maauso/mediaforge/internal/job"
	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/media/mediatest"
	"github.com/maauso/mediaforge/internal/preset"
	"github.com/maauso/mediaforge/internal/probe"
	"github.com/maauso/mediaforge/internal/storage"
	"github.com/maauso/mediaforge/internal/thumbnail"
)

// run executes the CLI with args against backend and returns stdout, stderr
// and the command error.
func run(t *testing.T, backend media.Backend, tty bool, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{
		stdout: &stdout,
		stderr: &stderr,
		tty:    tty,
		open: func(ctx context.Context, _ *cobra.Command, _ io.Writer) (*engine.Engine, func(context.Context) error, error) {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			store, err := storage.NewLocalStorage(t.TempDir())
			if err != nil {
				return nil, nil, err
			}
			runner := job.NewRunner(job.NewMemoryRepository(), job.Config{Workers: 2}, job.WithLogger(logger))
			return engine.New(runner, backend, preset.Default(), store, engine.WithLogger(logger)), runner.Shutdown, nil
		},
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func videoBackend(path string, streams media.StreamInfo) (*mediatest.Backend, *media.Handle) {
	h := &media.Handle{Path: path, SizeBytes: 1 << 20}
	backend := &mediatest.Backend{}
	backend.On("Open", mock.Anything, path).Return(h, nil)
	backend.On("ProbeStreams", mock.Anything, h).Return(streams, nil)
	backend.On("Close", h).Return(nil)
	return backend, h
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	return ee.Code
}

func TestProbe_JSON(t *testing.T) {
	backend, _ := videoBackend("clip.mp4", media.StreamInfo{DurationMs: 90_000, Width: 1280, Height: 720, CodecName: "h264"})

	stdout, _, err := run(t, backend, false, "probe", "clip.mp4")
	require.NoError(t, err)

	var info probe.VideoInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, uint64(90_000), info.DurationMs)
	assert.Equal(t, uint32(1280), info.Width)
	assert.Equal(t, uint64(1<<20), info.SizeBytes)
	require.NotEmpty(t, info.Suggestions)
	assert.Equal(t, "720p", info.Suggestions[0].Name)
}

func TestProbe_Human(t *testing.T) {
	backend, _ := videoBackend("clip.mp4", media.StreamInfo{DurationMs: 1500, Width: 640, Height: 360, CodecName: "vp9", FormatName: "webm"})

	stdout, _, err := run(t, backend, true, "probe", "clip.mp4")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Duration:    1.5s")
	assert.Contains(t, stdout, "Dimensions:  640x360")
	assert.Contains(t, stdout, "Size:        1.0 MiB")
	assert.Contains(t, stdout, "Codec:       vp9 (webm)")
	assert.Contains(t, stdout, "Suggestions: 360p")
}

func TestProbe_ForceJSONOnTerminal(t *testing.T) {
	backend, _ := videoBackend("clip.mp4", media.StreamInfo{DurationMs: 1000, Width: 320, Height: 240})

	stdout, _, err := run(t, backend, true, "probe", "--json", "clip.mp4")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
}

func TestProbe_NotFound(t *testing.T) {
	backend, _ := videoBackend("ok.mp4", media.StreamInfo{DurationMs: 1000, Width: 320, Height: 240})
	backend.On("Open", mock.Anything, "missing.mp4").Return(nil, media.Errorf(media.KindNotFound, "open", "missing.mp4", "no such file"))

	stdout, stderr, err := run(t, backend, false, "probe", "ok.mp4", "missing.mp4")

	assert.Equal(t, ExitInputError, exitCodeOf(t, err))
	assert.True(t, errors.Is(err, media.ErrNotFound))
	assert.Contains(t, stderr, "missing.mp4")

	var infos []probe.VideoInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &infos))
	assert.Len(t, infos, 1)
}

func TestThumbnail_Image(t *testing.T) {
	out := filepath.Join(t.TempDir(), "thumb.jpg")
	backend := &mediatest.Backend{}
	backend.On("DecodeImage", mock.Anything, "photo.PNG").Return(mediatest.Solid(400, 200, color.White), nil)

	stdout, _, err := run(t, backend, false, "thumbnail", "photo.PNG", "--size", "small", "--format", "jpeg", "-o", out)
	require.NoError(t, err)

	var res engine.ThumbnailResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, 128, res.Width)
	assert.Equal(t, 64, res.Height)
	assert.Equal(t, thumbnail.FormatJPEG, res.Format)
	assert.Equal(t, out, res.Path)
	assert.FileExists(t, out)
}

func TestThumbnail_VideoAt(t *testing.T) {
	dir := t.TempDir()
	backend, h := videoBackend("clip.mov", media.StreamInfo{DurationMs: 10_000, Width: 320, Height: 240})
	backend.On("DecodeFrame", mock.Anything, h, uint64(2500)).Return(mediatest.Solid(320, 240, color.Black), nil)

	stdout, _, err := run(t, backend, true, "thumbnail", "clip.mov", "--at", "2500", "--width", "160", "-o", dir)
	require.NoError(t, err)

	assert.Contains(t, stdout, "160x120 png at 2.5s")
	assert.FileExists(t, filepath.Join(dir, "thumbnail_clip_2500.png"))
}

func TestThumbnail_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"preset and custom size", []string{"thumbnail", "a.mp4", "--size", "small", "--width", "10"}},
		{"unknown format", []string{"thumbnail", "a.mp4", "--format", "gif"}},
		{"unknown preset", []string{"thumbnail", "a.png", "--size", "huge"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mediatest.Backend{}
			backend.On("DecodeImage", mock.Anything, mock.Anything).Return(mediatest.Solid(10, 10, color.White), nil)

			_, _, err := run(t, backend, false, tt.args...)
			assert.Equal(t, ExitCLIError, exitCodeOf(t, err))
		})
	}
}

func TestTimeline(t *testing.T) {
	dir := t.TempDir()
	backend, h := videoBackend("talk.mp4", media.StreamInfo{DurationMs: 4000, Width: 160, Height: 90})
	backend.On("DecodeFrame", mock.Anything, h, mock.Anything).Return(mediatest.Solid(160, 90, color.White), nil)

	stdout, _, err := run(t, backend, false, "timeline", "talk.mp4", "-n", "4", "-o", dir, "--prefix", "f", "--size", "icon")
	require.NoError(t, err)

	var res thumbnail.TimelineResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	require.Len(t, res.Frames, 4)
	assert.Equal(t, uint64(3000), res.Frames[3].TimeMs)
	assert.Equal(t, filepath.Join(dir, "f003.png"), res.Frames[3].Path)
	assert.Equal(t, 64, res.Width)
	assert.Equal(t, 36, res.Height)
}

func TestCompress(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	output := filepath.Join(dir, "out.mp4")
	backend, h := videoBackend(input, media.StreamInfo{DurationMs: 8000, Width: 1920, Height: 1080})
	backend.On("Encode", mock.Anything, h, mock.MatchedBy(func(s media.EncodeSettings) bool {
		return s.CRF != nil && *s.CRF == 28 && s.Width == 1280
	}), mock.Anything).
		Run(func(args mock.Arguments) { _ = os.WriteFile(args.String(3), make([]byte, 2048), 0600) }).
		Return(media.EncodeResult{SizeBytes: 2048, MediaDurationMs: 8000}, nil)

	stdout, _, err := run(t, backend, true, "compress", input, output, "--crf", "28", "--width", "1280")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Saved: "+output+" (2.0 KiB, 8s)")
	assert.FileExists(t, output)
	backend.AssertExpectations(t)
}

func TestCompress_PushWithoutS3(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	backend, _ := videoBackend(input, media.StreamInfo{DurationMs: 1000, Width: 320, Height: 240})
	backend.On("Encode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { _ = os.WriteFile(args.String(3), []byte("x"), 0600) }).
		Return(media.EncodeResult{SizeBytes: 1, MediaDurationMs: 1000}, nil)

	_, _, err := run(t, backend, false, "compress", input, filepath.Join(dir, "out.mp4"), "--push")

	assert.Equal(t, ExitCLIError, exitCodeOf(t, err))
	assert.ErrorIs(t, err, storage.ErrS3NotConfigured)
}

func TestEstimate(t *testing.T) {
	backend, h := videoBackend("long.mkv", media.StreamInfo{DurationMs: 100_000, Width: 1280, Height: 720})
	backend.On("Encode", mock.Anything, h, mock.MatchedBy(func(s media.EncodeSettings) bool {
		return s.LimitMs == 2000
	}), mock.Anything).Return(media.EncodeResult{SizeBytes: 1000, MediaDurationMs: 2000}, nil)

	stdout, _, err := run(t, backend, false, "estimate", "long.mkv", "--sample-ms", "2000", "--preset", "720p")
	require.NoError(t, err)

	var est compress.Estimate
	require.NoError(t, json.Unmarshal([]byte(stdout), &est))
	assert.Equal(t, uint64(50_000), est.EstimatedSizeBytes)
	assert.Equal(t, uint64(2000), est.SampleDurationMs)
}

func TestThreads(t *testing.T) {
	stdout, _, err := run(t, &mediatest.Backend{}, false, "threads")
	if err != nil {
		t.Skipf("process inspection unavailable: %v", err)
	}

	var report struct {
		PID        int32 `json:"pid"`
		Goroutines int   `json:"goroutines"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, int32(os.Getpid()), report.PID)
	assert.Positive(t, report.Goroutines)
}

func TestArgsValidation(t *testing.T) {
	_, _, err := run(t, &mediatest.Backend{}, false, "compress", "only-input.mp4")
	require.Error(t, err)

	var ee *ExitError
	assert.False(t, errors.As(err, &ee))
}

func TestAwait_CancelsOnInterrupt(t *testing.T) {
	runner := job.NewRunner(job.NewMemoryRepository(), job.Config{Workers: 1})
	defer func() { _ = runner.Shutdown(context.Background()) }()

	started := make(chan struct{})
	f, err := job.Submit(runner, job.Spec{Kind: job.KindProbe, Input: "slow.mp4"},
		func(ctx context.Context, _ job.ProgressFunc) (int, error) {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = await(ctx, f)

	assert.Equal(t, ExitCancelled, exitCodeOf(t, err))
	assert.True(t, errors.Is(err, media.ErrCancelled))
}

func TestApplyFlagOverrides(t *testing.T) {
	a := &app{stdout: io.Discard, stderr: io.Discard}
	root := newRootCmd(a)
	probeCmd, _, err := root.Find([]string{"probe"})
	require.NoError(t, err)
	require.NoError(t, probeCmd.ParseFlags([]string{"--ffmpeg", "/opt/ffmpeg", "--workers", "3", "--log-level", "debug"}))

	cfg := &config.Config{FFmpegPath: "ffmpeg", Workers: 0, LogDir: "/var/log/mediaforge", DatabasePath: "jobs.db"}
	applyFlagOverrides(probeCmd, cfg)

	assert.Equal(t, "/opt/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.LogDir)
	assert.Empty(t, cfg.DatabasePath)
	assert.True(t, cfg.LogStdout)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		kind media.Kind
		want int
	}{
		{media.KindInvalidParams, ExitCLIError},
		{media.KindNotFound, ExitInputError},
		{media.KindCorrupt, ExitInputError},
		{media.KindDecodeFailed, ExitInputError},
		{media.KindIOError, ExitFailed},
		{media.KindInternal, ExitFailed},
		{media.KindCancelled, ExitCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(media.NewError(tt.kind, "op", "", nil)))
		})
	}
}

func TestProgressLine(t *testing.T) {
	assert.Equal(t, "compress [#####     ]  50%", progressLine("compress", 50, 30))
	assert.Equal(t, "compress 100%", progressLine("compress", 140, 12))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "3.0 GiB", humanBytes(3<<30))
}
