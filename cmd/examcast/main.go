package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/config"
	"github.com/satindergrewal/examcast/internal/logging"
	"github.com/satindergrewal/examcast/internal/pipeline"
)

const usage = `usage: examcast <command> [flags] <document.json | directory>

commands:
  resolve   synthesize missing clips and report durations
  build     resolve and write the timed sequence
  assemble  build and render the narration track
  record    build and film the page, recording again even when current
  sync      run every stage and mux the final video
  run       same as sync
  check     verify tools, credentials and layout
  audition  play an item's narration with its page state in the browser
  history   show an item's latest stage runs from the ledger

flags:
`

// stageFor maps a pipeline command to the last stage it runs.
func stageFor(cmd string) (pipeline.Stage, bool) {
	switch cmd {
	case "resolve":
		return pipeline.StageResolve, true
	case "build":
		return pipeline.StageBuild, true
	case "assemble":
		return pipeline.StageAssemble, true
	case "record":
		return pipeline.StageRecord, true
	case "sync", "run":
		return pipeline.StageSync, true
	}
	return "", false
}

type flags struct {
	verbose     bool
	force       bool
	forceRecord bool
	dryRun      bool
	loop        bool
	last        int
	envFile     string
}

func parseFlags(cmd string, args []string, stderr io.Writer) (flags, []string, error) {
	var f flags
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	fs.BoolVar(&f.force, "force", false, "resynthesize every clip and rebuild every artifact")
	fs.BoolVar(&f.forceRecord, "force-record", false, "record the video again even when it is current")
	fs.BoolVar(&f.dryRun, "dry-run", false, "run the checks and exit")
	fs.BoolVar(&f.loop, "loop", false, "audition: loop playback")
	fs.IntVar(&f.last, "n", 20, "history: number of entries")
	fs.StringVar(&f.envFile, "env", ".env", "environment file")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	return f, fs.Args(), nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return pipeline.ExitUsage
	}
	cmd := args[0]
	through, isStage := stageFor(cmd)
	if !isStage && cmd != "check" && cmd != "audition" && cmd != "history" {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return pipeline.ExitUsage
	}

	f, rest, err := parseFlags(cmd, args[1:], stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return pipeline.ExitOK
		}
		return pipeline.ExitUsage
	}

	if err := config.LoadEnvFile(f.envFile); err != nil {
		fmt.Fprintf(stderr, "load %s: %v\n", f.envFile, err)
		return pipeline.ExitUsage
	}
	cfg := config.Load()

	log, err := logging.New(f.verbose)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return pipeline.ExitUsage
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cmd == "check" || f.dryRun {
		return check(ctx, cfg, stdout, log)
	}

	if len(rest) != 1 {
		fmt.Fprintf(stderr, "%s needs exactly one document or directory\n", cmd)
		return pipeline.ExitUsage
	}
	target := rest[0]

	switch cmd {
	case "history":
		if err := history(ctx, cfg, target, f.last, stdout); err != nil {
			log.Error("history failed", zap.Error(err))
			return pipeline.ExitUsage
		}
		return pipeline.ExitOK
	case "audition":
		if err := audition(ctx, cfg, target, f.loop, log); err != nil {
			log.Error("audition failed", zap.Error(err))
			return pipeline.ExitUsage
		}
		return pipeline.ExitOK
	}

	docs, err := pipeline.Discover(target)
	if err != nil {
		log.Error("no documents", zap.Error(err))
		return pipeline.ExitUsage
	}

	runner, closeRunner, err := newRunner(ctx, cfg, runFlags{
		force:       f.force,
		forceRecord: f.forceRecord || cmd == "record",
	}, log)
	if err != nil {
		log.Error("setup failed", zap.Error(err))
		return pipeline.ExitUsage
	}
	defer closeRunner()

	log.Info("examcast starting",
		zap.String("command", cmd),
		zap.Int("items", len(docs)),
		zap.String("work_dir", cfg.WorkDir),
		zap.String("tts", cfg.TTSProvider))

	results, err := runner.RunBatch(ctx, docs, through)
	for _, res := range results {
		// failed items carry no sequence
		if res == nil || res.Sequence == nil {
			continue
		}
		if res.Final != "" {
			fmt.Fprintln(stdout, res.Final)
		} else {
			fmt.Fprintf(stdout, "%s: %s done\n", res.Item, through)
		}
	}
	reportFailures(log, err)
	return pipeline.ExitCode(err)
}
