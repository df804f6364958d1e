package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/highlighter/internal/config"
	"github.com/heimdex/highlighter/internal/export"
)

var (
	// Global flags
	configPath string
	logLevel   string
	transport  string
	timeout    time.Duration
	jsonOutput bool

	// Run flags
	stageParams map[string]string
	concurrency int
	delegate    bool

	// Serve flags
	port int

	savedLimit int

	// Export flags
	reelTitle   string
	reelFPS     float64
	reelDir     string
	reelKeyword string
)

var rootCmd = &cobra.Command{
	Use:   "highlighter",
	Short: "Coordinate media workers to cut keyword highlights from a video",
	Long: `highlighter drives containerised media workers (audio extraction, silence
detection, splitting, transcription, keyword search) through stage chains and
copies the clips whose transcript mentions a keyword into a highlights folder.

Paths may be given in the workers' namespace (/data/...) or the local one.`,
	SilenceUsage: true,
}

var stageCmd = &cobra.Command{
	Use:   "stage [name] [input]",
	Short: "Run a single stage on one input",
	Example: `  highlighter stage extract-audio /data/uploads/video.mp4
  highlighter stage search ./media_data/outputs/clip_1_deepspeech --param word=caffeine`,
	Args: cobra.ExactArgs(2),
	RunE: runStage,
}

var chainCmd = &cobra.Command{
	Use:   "chain [chain|stage,stage,...] [input]",
	Short: "Run stages in order, feeding each output to the next",
	Long: `Runs a named chain (audio-split, clip-search) or a comma-separated list of
stages. The chain halts at the first failing stage.`,
	Example: `  highlighter chain audio-split /data/uploads/video.mp4
  highlighter chain prepare-audio,transcribe ./media_data/outputs/video/clip_1.mp4`,
	Args: cobra.ExactArgs(2),
	RunE: runChain,
}

var batchCmd = &cobra.Command{
	Use:   "batch [folder] [keyword]",
	Short: "Transcribe every clip in a folder and save those mentioning keyword",
	Args:  cobra.ExactArgs(2),
	RunE:  runBatch,
}

var highlightsCmd = &cobra.Command{
	Use:   "highlights [video] [keyword]",
	Short: "Split a video into clips, then batch-search them for keyword",
	Args:  cobra.ExactArgs(2),
	RunE:  runHighlights,
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Probe whether the stage workers can be reached",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "List saved highlights, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSaved,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write saved highlights as an EDL cut against their source videos",
	Long: `Writes a CMX3600 edit decision list placing each saved highlight at its
span of the uncut video it was split from. Highlights saved without a known
span are listed as skipped.`,
	Example: `  highlighter export --title caffeine --keyword caffeine --out-dir ./reels`,
	Args:    cobra.NoArgs,
	RunE:    runExport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the coordinator over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "highlighter %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (or set "+config.EnvConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "", "worker transport: http or exec")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall deadline for the command (0 = none)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	for _, c := range []*cobra.Command{stageCmd, chainCmd} {
		c.Flags().StringToStringVarP(&stageParams, "param", "p", nil, "stage parameter key=value (repeatable)")
	}
	for _, c := range []*cobra.Command{batchCmd, highlightsCmd} {
		c.Flags().IntVar(&concurrency, "concurrency", 0, "clips processed at once (default from config)")
		c.Flags().BoolVar(&delegate, "delegate-search", false, "run the search stage on the worker instead of locally")
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	savedCmd.Flags().IntVar(&savedLimit, "limit", 0, "show at most this many highlights")
	exportCmd.Flags().StringVar(&reelTitle, "title", export.DefaultTitle, "reel title, also the file name")
	exportCmd.Flags().Float64Var(&reelFPS, "fps", export.DefaultFrameRate, "timeline frame rate")
	exportCmd.Flags().StringVarP(&reelDir, "out-dir", "o", ".", "folder to write the .edl into")
	exportCmd.Flags().StringVar(&reelKeyword, "keyword", "", "only highlights saved for this keyword")

	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(highlightsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(savedCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
