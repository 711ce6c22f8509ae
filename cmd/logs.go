// File: cmd/logs.go
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

type logsOptions struct {
	follow bool
	new    bool
}

func newLogsCmd() *cobra.Command {
	opts := &logsOptions{}
	cmd := &cobra.Command{
		Use:   "logs [file]",
		Short: "Print the phquery log file",
		Long: `Prints the log file phquery writes to, logger.log_file unless a file is given.
With --follow it keeps printing new lines, across rotations, until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			path := cfg.Logger().LogFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no log file configured, set logger.log_file or pass a file")
			}
			return opts.run(cmd, path)
		},
	}
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "keep printing lines as they are written")
	cmd.Flags().BoolVar(&opts.new, "new", false, "with --follow, skip what is already in the file")
	return cmd
}

func (o *logsOptions) run(cmd *cobra.Command, path string) error {
	tc := tail.Config{
		Follow:    o.follow,
		ReOpen:    o.follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	}
	if o.follow && o.new {
		tc.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(path, tc)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer t.Cleanup()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				_ = t.Stop()
				return fmt.Errorf("failed to read log file: %w", line.Err)
			}
			if _, err := fmt.Fprintln(out, line.Text); err != nil {
				_ = t.Stop()
				return err
			}
		}
	}
}
