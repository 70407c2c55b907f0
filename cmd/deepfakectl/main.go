// Command deepfakectl inspects the request log, runs the frame sampler
// outside the server and looks up hosted media assets.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"deepfakeapi/config"
	"deepfakeapi/frames"
	"deepfakeapi/frames/cvcapture"
	"deepfakeapi/mediahost"
	"deepfakeapi/reqlog"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	good    = color.New(color.FgGreen)
	bad     = color.New(color.FgRed)
)

func main() {
	if err := newApp(cvcapture.Open, os.Stdout).Run(context.Background(), os.Args); err != nil {
		bad.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(open frames.Opener, out io.Writer) *cli.Command {
	defaults := config.Default()
	return &cli.Command{
		Name:  "deepfakectl",
		Usage: "Operator tools for the deepfake detector API",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Print request statistics from the request log",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "log",
						Usage: "Path of the request log",
						Value: defaults.RequestLog.Path,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return printStats(out, cmd.String("log"))
				},
			},
			{
				Name:      "probe",
				Usage:     "Print container metadata of a video",
				ArgsUsage: "VIDEO",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := cmd.Args().First()
					if path == "" {
						return cli.Exit("probe needs a video path", 2)
					}
					return probe(out, frames.NewSampler(open, zap.NewNop()), path)
				},
			},
			{
				Name:      "frames",
				Usage:     "Sample frames from a video",
				ArgsUsage: "VIDEO",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Directory where frames are written",
						Value:   defaults.Storage.FramesDir,
					},
					&cli.IntFlag{
						Name:    "max",
						Aliases: []string{"n"},
						Usage:   "Maximum number of frames to keep",
						Value:   10,
					},
					&cli.BoolFlag{
						Name:  "keep",
						Usage: "Leave the extracted frames on disk",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := cmd.Args().First()
					if path == "" {
						return cli.Exit("frames needs a video path", 2)
					}
					n := cmd.Int("max")
					if n <= 0 {
						return cli.Exit("max must be greater than zero", 2)
					}
					return sample(ctx, out, frames.NewSampler(open, zap.NewNop()), path, cmd.String("out"), int(n), cmd.Bool("keep"))
				},
			},
			{
				Name:      "asset",
				Usage:     "Print metadata of a hosted media asset",
				ArgsUsage: "PUBLIC_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "YAML config file with the media host credentials",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return cli.Exit("asset needs a public id", 2)
					}
					cfg, err := config.Load(cmd.String("config"))
					if err != nil {
						return err
					}
					up, err := mediahost.New(cfg.Media, zap.NewNop())
					if err != nil {
						return err
					}
					return asset(ctx, out, up, id)
				},
			},
		},
	}
}

func printStats(out io.Writer, path string) error {
	st, err := reqlog.ReadStats(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	heading.Fprintf(out, "Request statistics (%s)\n", path)
	fmt.Fprintf(out, "  total requests:      %d\n", st.TotalRequests)
	fmt.Fprintf(out, "  successful requests: %d\n", st.SuccessfulRequests)
	rate := good
	if st.SuccessRate < 90 {
		rate = bad
	}
	fmt.Fprint(out, "  success rate:        ")
	rate.Fprintf(out, "%.2f%%\n", st.SuccessRate)
	fmt.Fprintf(out, "  avg response time:   %.2f ms\n", st.AvgResponseTimeMs)
	return nil
}

func probe(out io.Writer, s *frames.Sampler, path string) error {
	info, err := s.Probe(path)
	if err != nil {
		return fmt.Errorf("could not read video %s: %w", path, err)
	}
	heading.Fprintf(out, "%s\n", filepath.Base(path))
	fmt.Fprintf(out, "  frames:   %d\n", info.TotalFrames)
	fmt.Fprintf(out, "  fps:      %d\n", info.FPS)
	fmt.Fprintf(out, "  size:     %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(out, "  duration: %ds\n", info.DurationSeconds)
	return nil
}

func sample(ctx context.Context, out io.Writer, s *frames.Sampler, path, outDir string, maxFrames int, keep bool) error {
	samples := s.Extract(ctx, path, outDir, maxFrames)
	if len(samples) == 0 {
		return fmt.Errorf("no frames extracted from %s", path)
	}
	good.Fprintf(out, "extracted %d frames\n", len(samples))
	for _, fs := range samples {
		fmt.Fprintf(out, "  #%d frame %d -> %s\n", fs.Index, fs.FrameNumber, fs.Path)
	}
	if !keep {
		n := frames.Cleanup(outDir, zap.NewNop())
		fmt.Fprintf(out, "removed %d frames\n", n)
	}
	return nil
}

func asset(ctx context.Context, out io.Writer, up mediahost.Uploader, publicID string) error {
	info, err := up.Info(ctx, publicID)
	if err != nil {
		return fmt.Errorf("asset %s: %w", publicID, err)
	}
	heading.Fprintf(out, "%s\n", info.PublicID)
	fmt.Fprintf(out, "  type:    %s/%s\n", info.ResourceType, info.Format)
	fmt.Fprintf(out, "  bytes:   %d\n", info.Bytes)
	fmt.Fprintf(out, "  size:    %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(out, "  url:     %s\n", info.SecureURL)
	fmt.Fprintf(out, "  created: %s\n", info.CreatedAt.Format(time.RFC3339))
	return nil
}
