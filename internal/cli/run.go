package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/loadrig/internal/loadtest/config"
	"github.com/wesleyorama2/loadrig/internal/loadtest/engine"
	"github.com/wesleyorama2/loadrig/internal/loadtest/output"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a load test scenario",
		Long: `Run the scenario in a YAML or JSON file.

Stages can be replaced by a fixed load from the command line:
  loadrig run scenarios/load.yaml --vus 10 --duration 30s

Every flag can also be set through the environment, e.g.
LOADRIG_BASE_URL=http://staging:3000 or LOADRIG_OUT=report.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.Int("vus", 0, "run a fixed number of VUs instead of the file's stages")
	f.Duration("duration", 0, "run a fixed load for this long instead of the file's stages")
	f.String("base-url", "", "override settings.baseUrl")
	f.String("out", "", "write the JSON report to this file")
	f.String("html", "", "write an HTML report to this file")
	f.BoolP("quiet", "q", false, "only print PASSED or FAILED")
	return cmd
}

func (a *app) run(cmd *cobra.Command, path string) error {
	logger, err := a.logger()
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer logger.Sync() //nolint:errcheck

	file, err := config.Load(path)
	if err != nil {
		return configError(err)
	}
	file.Apply(config.Overrides{
		VUs:      a.v.GetInt("vus"),
		Duration: a.v.GetDuration("duration"),
		BaseURL:  a.v.GetString("base-url"),
	})
	if err := file.Validate(); err != nil {
		return configError(err)
	}

	scenario, err := file.Scenario()
	if err != nil {
		return configError(err)
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  a.stdout,
		Quiet:   a.v.GetBool("quiet"),
		NoColor: a.v.GetBool("no-color"),
	})

	eng, err := engine.New(scenario,
		engine.WithLogger(logger.Named("engine")),
		engine.WithProgress(console.Progress),
	)
	if err != nil {
		return configError(err)
	}

	console.PrintHeader(scenario, eng.RunID())
	report, err := eng.Run(cmd.Context())
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	console.PrintSummary(report)

	if err := a.writeReports(report, logger); err != nil {
		code := report.ExitCode
		if code == engine.ExitOK {
			code = 1
		}
		return &ExitError{Code: code, Err: err}
	}

	if report.ExitCode != engine.ExitOK {
		return &ExitError{Code: report.ExitCode}
	}
	return nil
}

func (a *app) writeReports(report *engine.Report, logger *zap.Logger) error {
	var errs []error
	if path := a.v.GetString("out"); path != "" {
		if err := output.WriteJSONFile(path, report); err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("wrote JSON report", zap.String("path", path))
		}
	}
	if path := a.v.GetString("html"); path != "" {
		if err := output.WriteHTMLFile(path, report); err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("wrote HTML report", zap.String("path", path))
		}
	}
	return errors.Join(errs...)
}

// configError maps an invalid or unreadable scenario file to exit code 104.
func configError(err error) error {
	return &ExitError{Code: engine.ExitConfigError, Err: err}
}
