package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/kass/go-geo-tiler/pkg/batch"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	var (
		outDir     string
		format     string
		quality    int
		conflict   string
		toolSpecs  []string
		singleCore bool
	)
	cmd := &cobra.Command{
		Use:   "batch [files...]",
		Short: "Run image files through a chain of tools",
		Long:  `Process image files with an ordered tool chain, e.g. --tool resize:800x --tool grayscale.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := batch.ParseConflictRule(conflict)
			if err != nil {
				return err
			}
			var tools []batch.Tool
			for _, spec := range toolSpecs {
				t, err := batch.ParseTool(spec)
				if err != nil {
					return err
				}
				tools = append(tools, t)
			}

			settings := batch.DefaultSettings()
			settings.OutputDir = outDir
			settings.Format = batch.Format(format)
			settings.JPEGQuality = quality
			settings.Conflict = rule
			settings.UseMultiCore = !singleCore

			at, err := batch.NewActionThread(settings, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			bar := progressbar.NewOptions(len(args),
				progressbar.OptionSetDescription("processing"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts())
			var failures []batch.ActionData
			summary, err := at.Process(ctx, args, tools, func(d batch.ActionData) {
				if d.Status == batch.ProcessFailed {
					failures = append(failures, d)
				}
				if d.Status.Final() {
					_ = bar.Add(1)
				}
			})
			_ = bar.Finish()
			fmt.Println()

			for _, f := range failures {
				fmt.Fprintf(os.Stderr, "%s: %v\n", f.Source, f.Err)
			}
			fmt.Printf("done %d, failed %d, skipped %d, canceled %d\n",
				summary.Done, summary.Failed, summary.Skipped, summary.Canceled)
			if errors.Is(err, batch.ErrCanceled) {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d items failed", summary.Failed)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "out", "Output directory")
	cmd.Flags().StringVar(&format, "format", string(batch.FormatJPEG), "Output format: jpeg or png")
	cmd.Flags().IntVar(&quality, "quality", 90, "JPEG quality")
	cmd.Flags().StringVar(&conflict, "conflict", "rename", "Existing output: overwrite, skip or rename")
	cmd.Flags().StringArrayVar(&toolSpecs, "tool", nil, "Tool in chain order (repeatable)")
	cmd.Flags().BoolVar(&singleCore, "single-core", false, "Process one item at a time")
	return cmd
}
