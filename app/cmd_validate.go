package app

import (
	"fmt"
	"io"

	"github.com/border-inspection/tourgen/esp"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func NewCmdValidate(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate Earth Studio project files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doValidate(out, afero.NewOsFs(), args)
		},
	}
}

func doValidate(out io.Writer, fs afero.Fs, files []string) error {
	invalid := 0
	for _, file := range files {
		data, err := afero.ReadFile(fs, file)
		if err != nil {
			return errors.Wrap(err, "cannot read file")
		}
		err = esp.Validate(data)
		var verr esp.ValidationError
		switch {
		case err == nil:
			fmt.Fprintf(out, "%s: valid\n", file)
			continue
		case errors.As(err, &verr):
			fmt.Fprintf(out, "%s: invalid\n", file)
			for _, issue := range verr.Errors {
				fmt.Fprintf(out, "  %s: %s\n", issue.Path, issue.Message)
			}
		default:
			fmt.Fprintf(out, "%s: %s\n", file, err)
		}
		invalid++
	}
	if invalid > 0 {
		return errors.Errorf("%d of %d files are not valid", invalid, len(files))
	}
	return nil
}
