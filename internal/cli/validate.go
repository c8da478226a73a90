package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
	"github.com/wesleyorama2/loadrig/internal/loadtest/config"
	"github.com/wesleyorama2/loadrig/internal/loadtest/engine"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate scenario files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validate(args)
		},
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of scenario files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(a.stdout, config.Schema())
			return err
		},
	}
}

func (a *app) validate(paths []string) error {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed, color.Bold)
	if a.v.GetBool("no-color") {
		ok.DisableColor()
		bad.DisableColor()
	}

	failed := 0
	for _, path := range paths {
		summary, err := describeFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(a.stdout, "%s %s\n", bad.Sprint("✗"), path)
			for _, line := range problems(err) {
				fmt.Fprintf(a.stdout, "    %s\n", line)
			}
			continue
		}
		fmt.Fprintf(a.stdout, "%s %s: %s\n", ok.Sprint("✓"), path, summary)
	}

	if failed > 0 {
		return &ExitError{
			Code: engine.ExitConfigError,
			Err:  fmt.Errorf("%d of %d scenario files are invalid", failed, len(paths)),
		}
	}
	return nil
}

// describeFile loads path and builds an engine for it without running it.
func describeFile(path string) (string, error) {
	file, err := config.Load(path)
	if err != nil {
		return "", err
	}
	sc, err := file.Scenario()
	if err != nil {
		return "", err
	}
	eng, err := engine.New(sc)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s, %d stages, %s, up to %d VUs, %d request(s), %d thresholds",
		sc.Name, len(sc.Stages), sc.Stages.TotalDuration(), sc.Stages.MaxTarget(),
		len(file.Requests), len(eng.Thresholds())), nil
}

// problems flattens validation errors into one line each.
func problems(err error) []string {
	var verrs *loadtest.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs.Errors))
	for _, e := range verrs.Errors {
		if e.Field == "" {
			out = append(out, e.Message)
			continue
		}
		out = append(out, e.Field+": "+e.Message)
	}
	return out
}
