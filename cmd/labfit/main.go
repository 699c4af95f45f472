// Command labfit runs lab-measurement analyses described by YAML profiles
// against files on the local disk.
//
//	labfit run --profile NAME [--profiles FILE] [--data-dir DIR] [--out-dir DIR] [--dpi N] [--workbook]
//	labfit list [--profiles FILE]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RMahshie/labfit/internal/analysis"
	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/report"
	"github.com/RMahshie/labfit/internal/storage"
)

const usage = `usage:
  labfit run --profile NAME [flags]
  labfit list [flags]`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Error().Err(err).Msg("labfit failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd := args[0]
	if cmd != "run" && cmd != "list" {
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	fs := pflag.NewFlagSet("labfit "+cmd, pflag.ContinueOnError)
	fs.String("profiles", "", "YAML profile file (PROFILES_FILE)")
	fs.String("data-dir", "", "directory input paths are relative to (DATA_DIR)")
	fs.String("out-dir", "", "directory artifacts are written to (OUTPUT_DIR)")
	fs.Int("dpi", 0, "default figure resolution (PLOT_DPI)")
	fs.String("log-level", "", "log level (LOG_LEVEL)")
	name := fs.String("profile", "", "profile to run")
	workbook := fs.Bool("workbook", false, "also write an XLSX workbook")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	v := viper.New()
	for key, flag := range map[string]string{
		"PROFILES_FILE": "profiles",
		"DATA_DIR":      "data-dir",
		"OUTPUT_DIR":    "out-dir",
		"PLOT_DPI":      "dpi",
		"LOG_LEVEL":     "log-level",
	} {
		// Only flags given on the command line override the environment.
		if fs.Changed(flag) {
			if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
				return err
			}
		}
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(cfg.Observability.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	registry := analysis.DefaultRegistry()
	profiles, err := config.LoadProfiles(cfg.Analysis.ProfilesFile, registry.Kinds())
	if err != nil {
		return err
	}

	if cmd == "list" {
		return list(stdout, profiles)
	}

	if *name == "" {
		return fmt.Errorf("--profile is required\n%s", usage)
	}
	p, err := profiles.Get(*name)
	if err != nil {
		return err
	}

	out, err := analysis.Run(ctx, registry, p, storage.Dir(cfg.Analysis.DataDir))
	if err != nil {
		return err
	}
	if err := report.Print(stdout, out); err != nil {
		return err
	}

	files, err := report.Render(out, report.Options{
		DPI:          cfg.Analysis.PlotDPI,
		Workbook:     *workbook || p.Output.Workbook,
		WorkbookName: p.Output.WorkbookName,
	})
	if err != nil {
		return err
	}
	dir := cfg.Analysis.OutputDir
	if p.Output.Dir != "" && !fs.Changed("out-dir") {
		dir = p.Output.Dir
	}
	paths, err := report.WriteDir(dir, files)
	if err != nil {
		return err
	}
	for _, path := range paths {
		log.Info().Str("file", path).Msg("Wrote artifact")
	}
	return nil
}

func list(w io.Writer, profiles config.Profiles) error {
	for _, name := range profiles.Names() {
		p := profiles[name]
		line := fmt.Sprintf("%-28s %-24s %d input(s)", name, p.Kind, len(p.Inputs))
		if p.Description != "" {
			line += "  " + p.Description
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
