// Package main provides the keeperdata CLI entrypoint.
//
// This is thin wiring only — routing, auth, and DI composition are out
// of the core's scope per spec.md §1. The CLI constructs the concrete
// collaborators (blob stores, lock, document store) from a YAML config
// file and drives ImportOrchestrator/CleanseCoordinator directly.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/keeperdata/keeperdata/internal/config"
	"github.com/keeperdata/keeperdata/internal/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "keeperdata",
		Usage:          "KeeperData import and cleanse orchestrator",
		Version:        fmt.Sprintf("dev (commit: %s)", commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to keeperdata.yaml",
				Value:   "keeperdata.yaml",
			},
		},
		Commands: []*cli.Command{
			runImportCommand(),
			runCleanseCommand(),
			listImportsCommand(),
			getImportCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

func runImportCommand() *cli.Command {
	return &cli.Command{
		Name:  "run-import",
		Usage: "Run the two-phase import pipeline for a new or existing import_id",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "import-id", Usage: "import_id to use; a new UUID is generated if omitted"},
			&cli.StringFlag{Name: "source", Usage: "source type: external or internal", Value: "external"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			deps, err := buildDeps(c.Context, cfg)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			importID := c.String("import-id")
			if importID == "" {
				importID = uuid.NewString()
			}
			sourceType := types.SourceType(c.String("source"))

			run, err := deps.orchestrator.Start(c.Context, importID, sourceType)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Printf("import %s finished with status %s\n", run.ImportID, run.Status)
			if run.Status == types.ImportFailed {
				return cli.Exit("import failed: "+run.Error, 1)
			}
			return nil
		},
	}
}

func runCleanseCommand() *cli.Command {
	return &cli.Command{
		Name:  "run-cleanse",
		Usage: "Run the cleanse analysis synchronously (RunAnalysis)",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			deps, err := buildDeps(c.Context, cfg)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			op, err := deps.coordinator.RunAnalysis(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if op == nil {
				fmt.Println("cleanse analysis already running elsewhere; lock not acquired")
				return nil
			}
			fmt.Printf("cleanse operation %s: status=%s issuesFound=%d issuesResolved=%d\n",
				op.OperationID, op.Status, op.IssuesFound, op.IssuesResolved)
			return nil
		},
	}
}

func listImportsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-imports",
		Usage: "List recorded import runs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "skip", Value: 0},
			&cli.IntFlag{Name: "top", Value: 50},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			deps, err := buildDeps(c.Context, cfg)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			runs, err := deps.reporter.ListImports(c.Context, c.Int("skip"), c.Int("top"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			for _, r := range runs {
				fmt.Printf("%s\t%s\t%s\n", r.ImportID, r.SourceType, r.Status)
			}
			return nil
		},
	}
}

func getImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-import",
		Usage:     "Show one import run's report",
		ArgsUsage: "<import_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: keeperdata get-import <import_id>", 1)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			deps, err := buildDeps(c.Context, cfg)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			run, found, err := deps.reporter.GetImportReport(c.Context, c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if !found {
				return cli.Exit("no such import", 1)
			}
			fmt.Printf("import_id=%s status=%s acquisition=%s ingestion=%s\n",
				run.ImportID, run.Status, run.AcquisitionPhase.Status, run.IngestionPhase.Status)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("keeperdata dev (commit: %s)\n", commit)
			return nil
		},
	}
}
