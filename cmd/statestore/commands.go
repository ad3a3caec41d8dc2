package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/statestore/api"
	"pkt.systems/statestore/client"
	"pkt.systems/statestore/hlc"
	"pkt.systems/statestore/internal/version"
)

func parseFencingToken(raw string) (*hlc.Timestamp, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := hlc.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func newSetCommand(opts *cliOptions) *cobra.Command {
	var (
		fencingToken string
		condition    string
		expiry       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := parseFencingToken(fencingToken)
			if err != nil {
				return err
			}
			tr, cli, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer tr.Close()
			defer cli.Close()
			resp, err := cli.Set(cmd.Context(), []byte(args[0]), []byte(args[1]), opts.timeout, client.SetOptions{
				FencingToken: ft,
				Condition:    api.SetCondition(condition),
				Expiry:       expiry,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied=%t\n", resp.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&fencingToken, "fencing-token", "", "fencing token to guard the write")
	cmd.Flags().StringVar(&condition, "condition", "", "set condition: only_if_absent or only_if_equal_or_absent")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "key expiry; 0 keeps the key until deleted")
	return cmd
}

func newGetCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Read the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, cli, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer tr.Close()
			defer cli.Close()
			resp, err := cli.Get(cmd.Context(), []byte(args[0]), opts.timeout)
			if err != nil {
				return err
			}
			if resp.Value == nil {
				return fmt.Errorf("key %q not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", resp.Value)
			return nil
		},
	}
}

func newDelCommand(opts *cliOptions) *cobra.Command {
	var fencingToken string
	cmd := &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := parseFencingToken(fencingToken)
			if err != nil {
				return err
			}
			tr, cli, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer tr.Close()
			defer cli.Close()
			resp, err := cli.Del(cmd.Context(), []byte(args[0]), ft, opts.timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted=%d\n", resp.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&fencingToken, "fencing-token", "", "fencing token to guard the delete")
	return cmd
}

func newVDelCommand(opts *cliOptions) *cobra.Command {
	var fencingToken string
	cmd := &cobra.Command{
		Use:   "vdel <key> <value>",
		Short: "Delete a key only when its value matches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := parseFencingToken(fencingToken)
			if err != nil {
				return err
			}
			tr, cli, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer tr.Close()
			defer cli.Close()
			resp, err := cli.VDel(cmd.Context(), []byte(args[0]), []byte(args[1]), ft, opts.timeout)
			if err != nil {
				return err
			}
			switch resp.Value {
			case -1:
				fmt.Fprintln(cmd.OutOrStdout(), "value mismatch, not deleted")
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "deleted=%d\n", resp.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fencingToken, "fencing-token", "", "fencing token to guard the delete")
	return cmd
}

func newObserveCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "observe <key>",
		Short: "Stream change notifications for a key until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, cli, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer tr.Close()
			defer cli.Close()
			key := []byte(args[0])
			resp, err := cli.Observe(cmd.Context(), key, opts.timeout)
			if err != nil {
				return err
			}
			obs := resp.Value
			defer func() {
				// The command context is already cancelled on interrupt.
				ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
				defer cancel()
				if _, err := cli.Unobserve(ctx, key, opts.timeout); err != nil {
					opts.logger.Warn("unobserve failed", "key", args[0], "error", err)
				}
			}()
			for {
				n, ack, err := obs.Recv(cmd.Context())
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				switch n.Operation.Kind {
				case api.OperationSet:
					fmt.Fprintf(cmd.OutOrStdout(), "%s set %s %s\n", n.Version, n.Key, n.Operation.Value)
				case api.OperationDel:
					fmt.Fprintf(cmd.OutOrStdout(), "%s del %s\n", n.Version, n.Key)
				}
				if ack != nil {
					if err := ack.Ack(cmd.Context()); err != nil {
						opts.logger.Warn("ack failed", "key", args[0], "error", err)
					}
				}
			}
		},
	}
}

func newUnobserveCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unobserve <key>",
		Short: "Stop observing a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, cli, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer tr.Close()
			defer cli.Close()
			resp, err := cli.Unobserve(cmd.Context(), []byte(args[0]), opts.timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "was_observed=%t\n", resp.Value)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the statestore version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Module(), version.Current())
			return err
		},
	}
}
