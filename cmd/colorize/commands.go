package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"sar-colorizer/pkg/client"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type options struct {
	server   string
	maxWait  time.Duration
	interval time.Duration
	quiet    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "colorize",
		Short:        "Colorize SAR images through the colorizer backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("COLORIZER_URL", "http://localhost:5000"), "backend base url")
	root.PersistentFlags().DurationVar(&opts.maxWait, "max-wait", client.DefaultMaxWait, "maximum time to wait for a queued job")
	root.PersistentFlags().DurationVar(&opts.interval, "poll-interval", client.DefaultPollInterval, "interval between status checks")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "disable the progress spinner")

	root.AddCommand(newUploadCmd(opts), newStatusCmd(opts))
	return root
}

func newUploadCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image and print the colorized image url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), opts, args[0], output, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the colorized image to this file")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <jobId>",
		Short: "Show the status of a queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(opts.server)
			status, err := c.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return describe(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status: %s\n", status.Status)
			if status.ImageUrl != "" {
				fmt.Fprintf(out, "image:  %s\n", status.ImageUrl)
			}
			if status.Error != "" {
				fmt.Fprintf(out, "error:  %s\n", status.Error)
			}
			return nil
		},
	}
}

func runUpload(ctx context.Context, opts *options, path, output string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var bar *progressbar.ProgressBar
	if !opts.quiet {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetDescription("uploading"),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	c := client.New(opts.server,
		client.WithMaxWait(opts.maxWait),
		client.WithPollInterval(opts.interval),
		client.WithStatusCallback(func(status string) {
			if bar != nil {
				bar.Describe(status)
				bar.Add(1)
			}
		}),
	)

	file, err := c.SelectFile(path)
	if err != nil {
		return describe(err)
	}

	result, err := c.Submit(ctx, file)
	if err != nil {
		return describe(err)
	}
	if bar != nil {
		bar.Finish()
	}

	if result.ImageURL != "" {
		fmt.Fprintln(stdout, result.ImageURL)
	}

	if output == "" {
		if len(result.Data) > 0 {
			return errors.New("server returned the image inline, use -o to save it")
		}
		return nil
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", output, err)
	}
	defer f.Close()

	if len(result.Data) > 0 {
		if _, err := f.Write(result.Data); err != nil {
			return fmt.Errorf("error writing %s: %w", output, err)
		}
		return nil
	}

	if _, err := c.Download(ctx, result.ImageURL, f); err != nil {
		return describe(err)
	}
	return nil
}

// describe prefixes errors with the kind of failure so the user can tell a
// rejected file from an unreachable server.
func describe(err error) error {
	var validationErr *client.ValidationError
	var serverErr *client.ServerError
	var jobErr *client.JobFailedError

	switch {
	case errors.As(err, &validationErr):
		return fmt.Errorf("invalid file: %w", err)
	case errors.Is(err, client.ErrNoResponse):
		return fmt.Errorf("backend unreachable: %w", err)
	case errors.As(err, &serverErr):
		return fmt.Errorf("request rejected: %s", serverErr.Message)
	case errors.As(err, &jobErr):
		return fmt.Errorf("colorization failed: %w", err)
	default:
		return err
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
