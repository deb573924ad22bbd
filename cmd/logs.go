package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// newLogsCmd creates the `logs` command for reading the rotating log file.
func newLogsCmd(app *appContext) *cobra.Command {
	var follow bool

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the log file, optionally following new entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.cfg.Logger.LogFile
			if path == "" {
				return fmt.Errorf("no log file configured (logger.log_file)")
			}

			if !follow {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close()
				_, err = io.Copy(cmd.OutOrStdout(), f)
				return err
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    true,
				ReOpen:    true, // survive lumberjack rotation
				MustExist: false,
				Location:  &tail.SeekInfo{Whence: io.SeekEnd},
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("tailing log file: %w", err)
			}
			defer t.Cleanup()

			ctx := cmd.Context()
			for {
				select {
				case line, open := <-t.Lines:
					if !open {
						return t.Err()
					}
					if line.Err != nil {
						return line.Err
					}
					fmt.Fprintln(cmd.OutOrStdout(), line.Text)
				case <-ctx.Done():
					return t.Stop()
				}
			}
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new log lines as they are written")
	return logsCmd
}
