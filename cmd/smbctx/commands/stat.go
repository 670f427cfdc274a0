package commands

import (
	"strconv"
	"time"

	"github.com/absfs/smbctx"
	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show file metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

func runStat(cmd *cobra.Command, args []string) (err error) {
	fsys, err := openFS(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fsys.Close(); err == nil {
			err = cerr
		}
	}()

	info, err := fsys.Stat(sharePath(args[0]))
	if err != nil {
		return err
	}

	pairs := [][2]string{
		{"Name", info.Name()},
		{"Size", strconv.FormatInt(info.Size(), 10)},
		{"Mode", info.Mode().String()},
		{"Modified", info.ModTime().Format(time.RFC3339)},
	}

	if st, ok := info.Sys().(*smbctx.Stat); ok {
		pairs = append(pairs,
			[2]string{"Created", st.Btime.Format(time.RFC3339)},
			[2]string{"Accessed", st.Atime.Format(time.RFC3339)},
			[2]string{"Blocks", strconv.FormatInt(st.Blocks, 10)},
			[2]string{"Attributes", smbctx.NewWindowsAttributes(st.Attributes).String()},
		)
	}

	printKeyValues(cmd.OutOrStdout(), pairs)
	return nil
}
