package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/cli/internal/output"
	"github.com/getmockd/apilab/pkg/config"
	"github.com/getmockd/apilab/pkg/openapi"
)

var (
	validateSuites  []string
	validateMocks   []string
	validateOpenAPI []string
)

// ValidationResult is one checked input in --json output.
type ValidationResult struct {
	Kind  string `json:"kind"`
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	// Count is the number of tests or endpoints the file defines.
	Count int `json:"count,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and suite, mock and OpenAPI files",
	Long: `Check the configuration and, optionally, suite files, mock collections
and OpenAPI documents without running or serving anything.

An unset auth.secret is accepted here; serve generates an ephemeral one.
The command exits with status 1 when anything is invalid.`,
	Example: `  # Check apilab.yaml only
  apilab validate

  # Check files too
  apilab validate --suite 'suites/**/*.yaml' --mock mocks/users.yaml --openapi api.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := validateAll(cmd)
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := output.JSON(out, results); err != nil {
				return err
			}
		} else {
			printValidation(out, results)
		}
		for _, r := range results {
			if !r.Valid {
				return &ExitError{Code: 1}
			}
		}
		return nil
	},
}

func init() {
	f := validateCmd.Flags()
	f.StringArrayVar(&validateSuites, "suite", nil, "Suite file or glob to check (repeatable)")
	f.StringArrayVar(&validateMocks, "mock", nil, "Mock collection file to check (repeatable)")
	f.StringArrayVar(&validateOpenAPI, "openapi", nil, "OpenAPI 3 document to check (repeatable)")
	rootCmd.AddCommand(validateCmd)
}

func validateAll(cmd *cobra.Command) []ValidationResult {
	var results []ValidationResult
	add := func(kind, path string, count int, err error) {
		r := ValidationResult{Kind: kind, Path: path, Valid: err == nil, Count: count}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}

	cfg, err := loadConfig()
	if err == nil {
		if cfg.Auth.Secret == "" {
			// Stand in for the key serve would generate.
			cfg.Auth.Secret = ephemeralSecret()
		}
		err = cfg.Validate()
	}
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.Find()
	}
	if cfgPath == "" {
		cfgPath = "(defaults)"
	}
	add("config", cfgPath, 0, err)

	if len(validateSuites) > 0 {
		paths, err := apitest.ExpandSuitePatterns(validateSuites)
		if err != nil {
			add("suite", fmt.Sprint(validateSuites), 0, err)
		}
		for _, p := range paths {
			f, err := apitest.LoadSuiteFile(p)
			n := 0
			if f != nil {
				n = len(f.Tests)
			}
			add("suite", p, n, err)
		}
	}
	for _, p := range validateMocks {
		coll, err := loadCollection(p)
		n := 0
		if coll != nil {
			n = len(coll.Endpoints)
		}
		add("mock", p, n, err)
	}
	for _, p := range validateOpenAPI {
		doc, err := openapi.LoadFile(cmd.Context(), p)
		add("openapi", p, len(openapi.Endpoints(doc)), err)
	}
	return results
}

func printValidation(w io.Writer, results []ValidationResult) {
	for _, r := range results {
		if !r.Valid {
			fmt.Fprintf(w, "%s %s %s\n", color.RedString("✗"), r.Kind, r.Path)
			fmt.Fprintf(w, "    %s\n", r.Error)
			continue
		}
		detail := ""
		switch {
		case r.Kind == "suite":
			detail = dim(" (%d tests)", r.Count)
		case r.Kind == "mock" || r.Kind == "openapi":
			detail = dim(" (%d endpoints)", r.Count)
		}
		fmt.Fprintf(w, "%s %s %s%s\n", color.GreenString("✓"), r.Kind, r.Path, detail)
	}
}
