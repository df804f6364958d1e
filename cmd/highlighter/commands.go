package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heimdex/highlighter/internal/api"
	"github.com/heimdex/highlighter/internal/coordinator"
	"github.com/heimdex/highlighter/internal/export"
	"github.com/heimdex/highlighter/internal/report"
)

func runStage(cmd *cobra.Command, args []string) error {
	return execute(cmd, coordinator.Single{Stage: args[0], Input: args[1], Params: stageParams})
}

func runChain(cmd *cobra.Command, args []string) error {
	return execute(cmd, coordinator.Chain{Stages: strings.Split(args[0], ","), Input: args[1], Params: stageParams})
}

func runBatch(cmd *cobra.Command, args []string) error {
	return execute(cmd, coordinator.Batch{Folder: args[0], Keyword: args[1]})
}

func runHighlights(cmd *cobra.Command, args []string) error {
	return execute(cmd, coordinator.Highlights{Input: args[0], Keyword: args[1]})
}

// execute runs one request and prints whatever it produced before returning
// its error, so a failed chain still shows the halting stage.
func execute(cmd *cobra.Command, req coordinator.Request) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	res := a.coord.Execute(ctx, req)
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return res.Err
}

func printResult(w io.Writer, res coordinator.Result) error {
	if jsonOutput {
		out := struct {
			Mode   string             `json:"mode"`
			Run    *api.RunResponse   `json:"run,omitempty"`
			Report *api.BatchResponse `json:"report,omitempty"`
			Error  string             `json:"error,omitempty"`
		}{Mode: string(res.Mode), Error: res.Error()}
		if res.Run != nil {
			run := api.RunToResponse(res.Run)
			out.Run = &run
		}
		if res.Report != nil {
			rep := api.ReportToResponse(res.Report)
			out.Report = &rep
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	r := report.NewRenderer()
	// The split run is only worth showing on its own when it failed.
	if res.Run != nil && (res.Report == nil || res.Mode != coordinator.ModeHighlights) {
		if err := r.RenderRun(w, res.Run); err != nil {
			return err
		}
	}
	if res.Report != nil {
		return r.RenderBatch(w, res.Report)
	}
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	avail, err := a.avail.Refresh(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(avail)
	}
	return report.NewRenderer().RenderAvailability(cmd.OutOrStdout(), avail)
}

func runSaved(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	saved, err := a.sink.List(ctx)
	if err != nil {
		return err
	}
	if savedLimit > 0 && savedLimit < len(saved) {
		saved = saved[:savedLimit]
	}
	if jsonOutput {
		resp := api.HighlightsResponse{Highlights: make([]api.HighlightResponse, len(saved))}
		for i, d := range saved {
			resp.Highlights[i] = api.DestinationToResponse(d)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return report.NewRenderer().RenderHighlights(cmd.OutOrStdout(), saved)
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	saved, err := a.sink.List(ctx)
	if err != nil {
		return err
	}
	res, err := export.NewReel(reelTitle, reelFPS, reelKeyword, saved).Write(reelDir)
	if err != nil {
		return err
	}
	a.logger.Info("reel exported", "path", res.Path, "clips", res.ClipCount, "skipped", len(res.Skipped))

	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "wrote %s (%d clips)\n", res.Path, res.ClipCount)
	for _, name := range res.Skipped {
		fmt.Fprintf(w, "  skipped %s: source segment unknown\n", name)
	}
	return nil
}
