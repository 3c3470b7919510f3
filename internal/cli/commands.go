package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maauso/mediaforge/internal/compress"
	"github.com/maauso/mediaforge/internal/engine"
	"github.com/maauso/mediaforge/internal/job"
	"github.com/maauso/mediaforge/internal/probe"
	"github.com/maauso/mediaforge/internal/storage"
	"github.com/maauso/mediaforge/internal/thumbnail"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>...",
		Short: "Print duration, dimensions and suggested resolutions of videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				futures := make([]*job.Future[probe.VideoInfo], 0, len(args))
				for _, path := range args {
					f, err := eng.Probe(path)
					if err != nil {
						return submitError(err)
					}
					futures = append(futures, f)
				}

				infos := make([]probe.VideoInfo, 0, len(futures))
				var firstErr error
				for i, f := range futures {
					info, err := await(ctx, f)
					if err != nil {
						fmt.Fprintf(a.stderr, "%s: %v\n", args[i], err)
						if firstErr == nil {
							firstErr = err
						}
						continue
					}
					infos = append(infos, info)
				}

				var out any = infos
				if len(args) == 1 && len(infos) == 1 {
					out = infos[0]
				}
				if err := a.printer(cmd).print(out, func(w io.Writer) {
					for i, info := range infos {
						printProbe(w, info, i > 0)
					}
				}); err != nil {
					return err
				}
				return firstErr
			})
		},
	}
}

func printProbe(w io.Writer, info probe.VideoInfo, separate bool) {
	if separate {
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Duration:    %s\n", humanDuration(info.DurationMs))
	fmt.Fprintf(w, "Dimensions:  %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(w, "Size:        %s\n", humanBytes(info.SizeBytes))
	if info.Bitrate != nil {
		fmt.Fprintf(w, "Bitrate:     %d kb/s\n", *info.Bitrate/1000)
	}
	if info.CodecName != "" || info.FormatName != "" {
		fmt.Fprintf(w, "Codec:       %s (%s)\n", info.CodecName, info.FormatName)
	}
	names := make([]string, 0, len(info.Suggestions))
	for _, s := range info.Suggestions {
		names = append(names, s.Name)
	}
	if len(names) == 0 {
		names = append(names, "none")
	}
	fmt.Fprintf(w, "Suggestions: %s\n", strings.Join(names, ", "))
}

func bindThumbnailFlags(fs *pflag.FlagSet) {
	fs.String("size", "", "Thumbnail or resolution preset name (default medium)")
	fs.Uint32("width", 0, "Custom width; 0 keeps the aspect ratio when --height is set")
	fs.Uint32("height", 0, "Custom height; 0 keeps the aspect ratio when --width is set")
	fs.String("format", "png", "Image format: png, jpeg, webp")
	fs.Bool("fallback", false, "Write a transparent image when a frame cannot be decoded")
}

func thumbnailOptions(cmd *cobra.Command) (thumbnail.Size, thumbnail.Format, bool, error) {
	fs := cmd.Flags()
	name, _ := fs.GetString("size")
	width, _ := fs.GetUint32("width")
	height, _ := fs.GetUint32("height")
	format, _ := fs.GetString("format")
	fallback, _ := fs.GetBool("fallback")

	f, err := thumbnail.ParseFormat(format)
	if err != nil {
		return nil, "", false, &ExitError{Code: ExitCLIError, Err: err}
	}

	var size thumbnail.Size
	custom := width > 0 || height > 0
	switch {
	case name != "" && custom:
		return nil, "", false, &ExitError{Code: ExitCLIError, Err: errors.New("--size cannot be combined with --width/--height")}
	case name != "":
		size = thumbnail.PresetSize{Name: name}
	case custom:
		size = thumbnail.CustomSize{Width: width, Height: height}
	}
	return size, f, fallback, nil
}

func newThumbnailCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumbnail <file>",
		Short: "Extract a thumbnail from a video frame or an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, format, fallback, err := thumbnailOptions(cmd)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			output, _ := fs.GetString("output")
			push, _ := fs.GetBool("push")
			forceImage, _ := fs.GetBool("image")

			req := thumbnail.Request{
				Size:               size,
				Format:             format,
				EmptyImageFallback: fallback,
				OutputPath:         output,
			}
			if fs.Changed("at") {
				at, _ := fs.GetUint64("at")
				req.TimeMs = &at
			}

			path := args[0]
			isImage := forceImage || imageExtensions[strings.ToLower(filepath.Ext(path))]

			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				submit := eng.VideoThumbnail
				if isImage {
					submit = eng.ImageThumbnail
				}
				f, err := submit(path, req, push)
				if err != nil {
					return submitError(err)
				}
				res, err := await(ctx, f)
				if err != nil {
					return err
				}
				return a.printer(cmd).print(res, func(w io.Writer) {
					fmt.Fprintf(w, "Saved: %s (%dx%d %s", res.Path, res.Width, res.Height, res.Format)
					if !isImage {
						fmt.Fprintf(w, " at %s", humanDuration(res.TimeMs))
					}
					fmt.Fprintln(w, ")")
					if res.Fallback {
						fmt.Fprintln(w, "Frame could not be decoded; wrote an empty image.")
					}
					if res.URL != "" {
						fmt.Fprintf(w, "URL:   %s\n", res.URL)
					}
				})
			})
		},
	}
	bindThumbnailFlags(cmd.Flags())
	cmd.Flags().StringP("output", "o", ".", "Output file, or a directory receiving thumbnail_<name>_<ms>.<ext>")
	cmd.Flags().Uint64("at", 0, "Video position in milliseconds (default first frame)")
	cmd.Flags().Bool("image", false, "Treat the input as a still image regardless of its extension")
	cmd.Flags().Bool("push", false, "Upload the thumbnail to S3")
	return cmd
}

func newTimelineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <file>",
		Short: "Write evenly spaced thumbnails of a video to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, format, fallback, err := thumbnailOptions(cmd)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			count, _ := fs.GetUint32("count")
			dir, _ := fs.GetString("output")
			prefix, _ := fs.GetString("prefix")
			suffix, _ := fs.GetString("suffix")

			sink := storage.WriteToFiles{Path: dir, FilePrefix: prefix, FileSuffix: suffix}
			if fs.Changed("max-files") {
				maxFiles, _ := fs.GetUint64("max-files")
				sink.MaxFiles = &maxFiles
			}
			req := thumbnail.TimelineRequest{
				Count:              count,
				Size:               size,
				Format:             format,
				EmptyImageFallback: fallback,
				Sink:               sink,
			}

			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				f, err := eng.Timeline(args[0], req)
				if err != nil {
					return submitError(err)
				}
				stop := a.watchProgress(ctx, eng, f.ID(), "timeline")
				res, err := await(ctx, f)
				stop()
				if err != nil {
					return err
				}
				return a.printer(cmd).print(res, func(w io.Writer) {
					fallbacks := 0
					for _, fr := range res.Frames {
						fmt.Fprintf(w, "%s  %s\n", humanDuration(fr.TimeMs), fr.Path)
						if fr.Fallback {
							fallbacks++
						}
					}
					fmt.Fprintf(w, "Wrote %d frames (%dx%d)", len(res.Frames), res.Width, res.Height)
					if fallbacks > 0 {
						fmt.Fprintf(w, ", %d empty", fallbacks)
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
	bindThumbnailFlags(cmd.Flags())
	cmd.Flags().Uint32P("count", "n", 10, "Number of thumbnails")
	cmd.Flags().StringP("output", "o", ".", "Output directory")
	cmd.Flags().String("prefix", "", "File name prefix")
	cmd.Flags().String("suffix", "", "File name suffix (default .<format>)")
	cmd.Flags().Uint64("max-files", 0, "Keep at most this many matching files in the directory")
	return cmd
}

func bindRateFlags(fs *pflag.FlagSet) {
	fs.Uint8("crf", 0, "Constant quality (0-51)")
	fs.Uint32("bitrate", 0, "Target video bitrate in kb/s")
	fs.String("preset", "", "Resolution preset name (e.g. 720p)")
	fs.Uint32("width", 0, "Output width")
	fs.Uint32("height", 0, "Output height")
	fs.String("speed", "", "Encoder speed preset (default veryfast)")
}

// compressParams only sets the fields whose flags were given.
func compressParams(cmd *cobra.Command) compress.Params {
	fs := cmd.Flags()
	var p compress.Params
	if fs.Changed("crf") {
		v, _ := fs.GetUint8("crf")
		p.CRF = &v
	}
	if fs.Changed("bitrate") {
		v, _ := fs.GetUint32("bitrate")
		p.TargetBitrateKbps = &v
	}
	if fs.Changed("preset") {
		v, _ := fs.GetString("preset")
		p.Preset = &v
	}
	if fs.Changed("width") {
		v, _ := fs.GetUint32("width")
		p.Width = &v
	}
	if fs.Changed("height") {
		v, _ := fs.GetUint32("height")
		p.Height = &v
	}
	if fs.Lookup("sample-ms") != nil && fs.Changed("sample-ms") {
		v, _ := fs.GetUint64("sample-ms")
		p.SampleDurationMs = &v
	}
	p.EncoderSpeed, _ = fs.GetString("speed")
	return p
}

func newCompressCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <input> <output>",
		Short: "Re-encode a video under a quality or bitrate target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := compressParams(cmd)
			push, _ := cmd.Flags().GetBool("push")

			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				f, err := eng.Compress(args[0], args[1], params, push)
				if err != nil {
					return submitError(err)
				}
				stop := a.watchProgress(ctx, eng, f.ID(), "compress")
				res, err := await(ctx, f)
				stop()
				if err != nil {
					return err
				}
				return a.printer(cmd).print(res, func(w io.Writer) {
					fmt.Fprintf(w, "Saved: %s (%s, %s)\n", res.OutputPath, humanBytes(res.SizeBytes), humanDuration(res.DurationMs))
					if res.Truncated {
						fmt.Fprintln(w, "Only the leading sample was encoded.")
					}
					if res.URL != "" {
						fmt.Fprintf(w, "URL:   %s\n", res.URL)
					}
				})
			})
		},
	}
	bindRateFlags(cmd.Flags())
	cmd.Flags().Uint64("sample-ms", 0, "Encode only the leading milliseconds of the input")
	cmd.Flags().Bool("push", false, "Upload the output to S3")
	return cmd
}

func newEstimateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate <input>",
		Short: "Predict the compressed size of a video from a short sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := compressParams(cmd)

			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				f, err := eng.Estimate(args[0], params)
				if err != nil {
					return submitError(err)
				}
				res, err := await(ctx, f)
				if err != nil {
					return err
				}
				return a.printer(cmd).print(res, func(w io.Writer) {
					fmt.Fprintf(w, "Estimated size: %s for %s\n", humanBytes(res.EstimatedSizeBytes), humanDuration(res.EstimatedDurationMs))
					fmt.Fprintf(w, "Sample:         %s for %s\n", humanBytes(res.SampleSizeBytes), humanDuration(res.SampleDurationMs))
				})
			})
		},
	}
	bindRateFlags(cmd.Flags())
	cmd.Flags().Uint64("sample-ms", compress.DefaultSampleDurationMs, "Sample window in milliseconds")
	return cmd
}
