package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/cli/internal/output"
	"github.com/getmockd/apilab/pkg/cli/internal/parse"
	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/runner"
)

var (
	runEnvFiles    []string
	runVars        []string
	runTimeout     time.Duration
	runConcurrency int
	runNoColor     bool
)

var runCmd = &cobra.Command{
	Use:   "run <suite-file|glob>...",
	Short: "Run suite files and report the results",
	Long: `Run one or more suite files (YAML or JSON) against live services.

Arguments may be doublestar globs such as 'suites/**/*.yaml'. Variables are
merged in this order, later sources winning: the suite's own variables, each
--env-file, then each --var.

The command exits with status 1 when any test fails or errors.`,
	Example: `  # Run every suite under suites/
  apilab run 'suites/**/*.yaml'

  # Point a suite at staging
  apilab run smoke.yaml --env-file staging.env --var token=abc123

  # Machine-readable output
  apilab run smoke.yaml --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runNoColor {
			color.NoColor = true
		}
		return runSuites(cmd, args)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVar(&runEnvFiles, "env-file", nil, "Read variables from a .env file (repeatable)")
	f.StringArrayVarP(&runVars, "var", "v", nil, "Set a variable as name=value (repeatable)")
	f.DurationVar(&runTimeout, "timeout", 30*time.Second, "Default per-test timeout")
	f.IntVar(&runConcurrency, "concurrency", 1, "Tests of one suite run at once")
	f.BoolVar(&runNoColor, "no-color", false, "Disable coloured output")
	rootCmd.AddCommand(runCmd)
}

// loadVariables merges --env-file and --var values.
func loadVariables() (map[string]string, error) {
	vars := map[string]string{}
	if len(runEnvFiles) > 0 {
		env, err := godotenv.Read(runEnvFiles...)
		if err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		maps.Copy(vars, env)
	}
	flagVars, err := parse.Vars(runVars)
	if err != nil {
		return nil, err
	}
	maps.Copy(vars, flagVars)
	return vars, nil
}

func runSuites(cmd *cobra.Command, patterns []string) error {
	paths, err := apitest.ExpandSuitePatterns(patterns)
	if err != nil {
		return err
	}
	files := make([]*apitest.SuiteFile, 0, len(paths))
	for _, p := range paths {
		f, err := apitest.LoadSuiteFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	overrides, err := loadVariables()
	if err != nil {
		return err
	}

	log := logging.Nop()
	if logLevel != "" {
		log = logging.New(logging.Config{Level: logging.ParseLevel(logLevel), Output: os.Stderr})
	}
	r := runner.New(
		runner.WithLogger(log),
		runner.WithDefaultTimeout(runTimeout),
		runner.WithConcurrency(runConcurrency),
	)

	out := cmd.OutOrStdout()
	runs := make([]*apitest.Run, 0, len(files))
	failed := false
	for _, f := range files {
		vars := maps.Clone(f.Variables)
		if vars == nil {
			vars = map[string]string{}
		}
		maps.Copy(vars, overrides)

		tests := make([]*apitest.Test, len(f.Tests))
		for i := range f.Tests {
			tests[i] = &f.Tests[i]
		}
		run := r.RunTests(cmd.Context(), f.Name, tests, vars)
		runs = append(runs, run)
		if run.Status != apitest.RunPassed {
			failed = true
		}
		if !jsonOutput {
			printRun(out, f.Path, run)
		}
	}

	if jsonOutput {
		if err := output.JSON(out, runs); err != nil {
			return err
		}
	} else if len(runs) > 1 {
		printTotals(out, runs)
	}
	if failed {
		return &ExitError{Code: 1}
	}
	return nil
}

// Colour helpers. color.NoColor is consulted on every call, so --no-color
// applies even though these are built at init.
var (
	dim  = color.New(color.Faint).SprintfFunc()
	bold = color.New(color.Bold).SprintFunc()
)

// printRun writes a human-readable report of one run.
func printRun(w io.Writer, path string, run *apitest.Run) {
	fmt.Fprintf(w, "%s %s\n", bold(run.SuiteName), dim("(%s)", path))
	for _, res := range run.Results {
		switch {
		case res.Error != "":
			fmt.Fprintf(w, "  %s %s %s\n", color.YellowString("!"), res.TestName, dim("%s %s", res.Method, res.URL))
			fmt.Fprintf(w, "      %s\n", color.YellowString("%s", res.Error))
		case res.Passed:
			fmt.Fprintf(w, "  %s %s %s\n", color.GreenString("✓"), res.TestName,
				dim("%s %s %d %dms", res.Method, res.URL, res.StatusCode, res.ResponseTimeMs))
		default:
			fmt.Fprintf(w, "  %s %s %s\n", color.RedString("✗"), res.TestName,
				dim("%s %s %d %dms", res.Method, res.URL, res.StatusCode, res.ResponseTimeMs))
			for _, a := range res.Assertions {
				if !a.Passed {
					fmt.Fprintf(w, "      %s\n", color.RedString("%s", a.Message))
				}
			}
		}
	}
	fmt.Fprintf(w, "  %s\n\n", summaryLine(run.Passed, run.Failed, run.Errored, run.DurationMs))
}

// printTotals writes the combined summary of several runs.
func printTotals(w io.Writer, runs []*apitest.Run) {
	var passed, failed, errored int
	var ms int64
	for _, r := range runs {
		passed += r.Passed
		failed += r.Failed
		errored += r.Errored
		ms += r.DurationMs
	}
	fmt.Fprintf(w, "%s %s\n", bold(fmt.Sprintf("%d suites:", len(runs))), summaryLine(passed, failed, errored, ms))
}

func summaryLine(passed, failed, errored int, ms int64) string {
	s := color.GreenString("%d passed", passed)
	if failed > 0 {
		s += ", " + color.RedString("%d failed", failed)
	} else {
		s += ", 0 failed"
	}
	if errored > 0 {
		s += ", " + color.YellowString("%d errored", errored)
	}
	return s + dim(" in %dms", ms)
}
