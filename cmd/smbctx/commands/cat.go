package commands

import (
	"io"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>...",
	Short: "Print file contents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCat,
}

func runCat(cmd *cobra.Command, args []string) (err error) {
	fsys, err := openFS(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fsys.Close(); err == nil {
			err = cerr
		}
	}()

	for _, name := range args {
		f, err := fsys.OpenFile(sharePath(name))
		if err != nil {
			return err
		}

		_, err = io.Copy(cmd.OutOrStdout(), f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}

	return nil
}
