package commands

import (
	"fmt"
	"strconv"

	"github.com/absfs/smbctx"
	"github.com/spf13/cobra"
)

var lsLong bool

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Long: `List the entries of a directory on the share, without "." and "..".

Examples:
  # List the share root
  smbctx ls --server fileserver --share public -u alice

  # Long listing with attributes
  smbctx ls -l reports/2024`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "show mode, size, modification time and attributes")
}

func runLs(cmd *cobra.Command, args []string) (err error) {
	dir := "."
	if len(args) == 1 {
		dir = sharePath(args[0])
	}

	fsys, err := openFS(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fsys.Close(); err == nil {
			err = cerr
		}
	}()

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !lsLong {
		for _, e := range entries {
			fmt.Fprintln(out, e.Name())
		}
		return nil
	}

	table := newTable(out)
	table.SetHeader([]string{"Mode", "Size", "Modified", "Attributes", "Name"})
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return err
		}

		attrs := ""
		if wa := smbctx.GetWindowsAttributes(info); wa != nil {
			attrs = wa.String()
		}

		table.Append([]string{
			info.Mode().String(),
			strconv.FormatInt(info.Size(), 10),
			info.ModTime().Format("2006-01-02 15:04:05"),
			attrs,
			e.Name(),
		})
	}
	table.Render()

	return nil
}
