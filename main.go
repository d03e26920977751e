// pmu-query: look up perf counter strings for PMU events.
//
// Usage:
//
//	pmu-query [-a] [-d] [-f file[,file...]]
//
// Without -f the host CPU is identified with pcm-core, its event files are
// looked up in the perfmon map file and downloaded. With -f the given files
// are used instead and nothing is fetched.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ---------------------------------------------------------------------------
// CLI
// ---------------------------------------------------------------------------

const longHelp = `pmu-query: look up perf counter strings for PMU events

Catalog source:
  default          identify the CPU with pcm-core -c, resolve its core/offcore
                   event files in the perfmon map file and download them
  -f a.json,b.json load local event files instead (.gz and JSON with comments
                   are accepted); every file goes into one list

Modes:
  default          prompt for a substring and print one cpu/.../ string per
                   event code of every matching event; empty line quits
  -a               print "name:description" for every event and exit

Examples:
  pmu-query
  pmu-query -a
  pmu-query -d                      # also save the downloaded event files
  pmu-query -f skylakex_core.json
  pmu-query -a --where 'counter_mask != "0"'
  pmu-query --cpuid builtin          # no pcm-core, read CPUID directly
`

type options struct {
	all        bool
	download   bool
	verbose    bool
	files      string
	configPath string
	where      string
	cpuid      string
}

func bindFlags(fs *pflag.FlagSet, o *options) {
	fs.BoolVarP(&o.all, "all", "a", false, "print every event with its description and exit")
	fs.StringVarP(&o.files, "file", "f", "", "comma-separated local event files (no download, no CPU identification)")
	fs.BoolVarP(&o.download, "download", "d", false, "save downloaded event files to the current directory")
	fs.StringVar(&o.configPath, "config", "", "YAML config file (default $"+configEnv+")")
	fs.StringVar(&o.where, "where", "", "Starlark expression selecting events, e.g. 'msr_value != \"0\"'")
	fs.StringVar(&o.cpuid, "cpuid", "", "CPU identification strategy: builtin, linux, windows, cygwin, default")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
}

// app carries the process environment so tests can swap it out.
type app struct {
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	fs       afero.Fs
	platform string
	lookPath func(string) (string, error)

	// identify, when set, replaces the strategy table.
	identify identifier
}

func newApp() *app {
	return &app{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		fs:       afero.NewOsFs(),
		platform: hostPlatform(runtime.GOOS, os.Getenv),
		lookPath: exec.LookPath,
	}
}

func newRootCommand(a *app) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "pmu-query",
		Short:         "Look up perf counter strings for PMU events",
		Long:          longHelp,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), opts)
		},
	}
	bindFlags(cmd.Flags(), &opts)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &argumentError{err: err}
	})
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func (a *app) run(ctx context.Context, opts options) error {
	logger := newLogger(a.stderr, opts.verbose)

	cfg, err := loadConfig(a.fs, opts.configPath)
	if err != nil {
		return err
	}
	if opts.cpuid != "" {
		cfg.Identifier.Strategy = opts.cpuid
	}
	filter, err := compileFilter(opts.where)
	if err != nil {
		return err
	}

	loadCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var cat *catalog
	if opts.files != "" {
		cat, err = loadLocal(a.fs, opts.files, logger)
	} else {
		id := a.identify
		if id == nil {
			if id, err = newIdentifier(cfg.Identifier, a.platform, a.lookPath); err != nil {
				return err
			}
		}
		cat, err = loadRemote(loadCtx, newFetcher(cfg), id, remoteOptions{download: opts.download, fs: a.fs}, logger)
	}
	if err != nil {
		return err
	}
	logger.Debug("catalog loaded", "core", len(cat.core), "offcore", len(cat.offcore))

	if opts.all {
		return dumpEvents(a.stdout, cat.events(), filter)
	}
	return newQuerySession(a.stdout, cat.events(), filter).run(a.stdin)
}

// report prints err where the user expects it and returns the exit code.
func report(err error, stdout, stderr io.Writer) int {
	msg, toStdout, code := exitCode(err)
	if msg != "" {
		if toStdout {
			fmt.Fprintln(stdout, msg)
		} else {
			fmt.Fprintln(stderr, msg)
		}
	}
	return code
}

// ---------------------------------------------------------------------------
// main
// ---------------------------------------------------------------------------

func main() {
	a := newApp()
	err := newRootCommand(a).ExecuteContext(context.Background())
	os.Exit(report(err, a.stdout, a.stderr))
}
