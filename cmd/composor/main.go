package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/shell/executor"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const usageText = `Usage: composor [flags] <command> [args]

Commands:
  build [app...]          build the named applications, or all of them
  deploy <app[=SEL]...>   deploy applications; SEL is a version number,
                          "latest" (default) or "rollback"
  history <app>           show one application's deployment history
  list                    list applications with live and latest versions

Flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("composor", flag.ContinueOnError)
	configPath := flags.String("config", "", "Path to config file")
	showVersion := flags.Bool("version", false, "Print version and exit")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usageText)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return ExitConfigError
	}

	if *showVersion {
		fmt.Printf("composor %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return ExitConfigError
	}
	command := flags.Arg(0)
	rest := flags.Args()[1:]

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)
	logger.Info("starting composor", "version", Version, "command", command)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitCode(err)
	}
	defer app.Close()

	switch command {
	case "build":
		err = app.Build(ctx, rest)
	case "deploy":
		err = runDeploy(ctx, app, rest)
	case "history":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: composor history <app>")
			return ExitConfigError
		}
		err = app.History(ctx, rest[0])
	case "list":
		err = app.List(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		flags.Usage()
		return ExitConfigError
	}

	if err != nil {
		logger.Error("command failed", "command", command, "error", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// runDeploy parses deploy's own flags and targets, then executes.
func runDeploy(ctx context.Context, app *App, args []string) error {
	flags := flag.NewFlagSet("deploy", flag.ContinueOnError)
	dryRun := flags.Bool("dry-run", false, "Print the plan without executing it")
	noRollback := flags.Bool("no-rollback", false, "Halt on failure instead of rolling back")
	forceRecreate := flags.Bool("force-recreate", false, "Recreate containers even when unchanged")
	reason := flags.String("reason", "", "Reason recorded on rollback ledger entries")
	if err := flags.Parse(args); err != nil {
		return &AppError{Op: "deploy", Err: err, ExitCode: ExitConfigError}
	}

	if flags.NArg() == 0 {
		return &AppError{
			Op:       "deploy",
			Err:      errors.New("no applications given; usage: composor deploy <app[=version|latest|rollback]>..."),
			ExitCode: ExitConfigError,
		}
	}

	req, err := parseTargets(flags.Args())
	if err != nil {
		return &AppError{Op: "deploy", Err: err, ExitCode: ExitConfigError}
	}

	return app.Deploy(ctx, req, executor.Options{
		DryRun:        *dryRun,
		AutoRollback:  !*noRollback,
		StepTimeout:   app.config.Deploy.StepTimeout,
		ForceRecreate: *forceRecreate,
		Reason:        *reason,
	})
}

// parseTargets turns "app", "app=3", "app=latest" and "app=rollback"
// arguments into a deploy request.
func parseTargets(args []string) (domain.DeployRequest, error) {
	req := make(domain.DeployRequest, len(args))
	for _, arg := range args {
		id, sel, found := strings.Cut(arg, "=")
		if id == "" {
			return nil, fmt.Errorf("invalid target %q", arg)
		}
		if _, dup := req[id]; dup {
			return nil, fmt.Errorf("duplicate target %q", id)
		}

		switch {
		case !found, sel == "latest":
			req[id] = domain.Latest()
		case sel == "rollback":
			req[id] = domain.RollbackToLastGood()
		default:
			version, err := strconv.Atoi(sel)
			if err != nil || version < 1 {
				return nil, fmt.Errorf("invalid version %q for %s: want a positive number, \"latest\" or \"rollback\"", sel, id)
			}
			req[id] = domain.Explicit(version)
		}
	}
	return req, nil
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return ExitConfigError
}
