package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"
	"pkt.systems/statestore/client"
	"pkt.systems/statestore/transport/natstransport"
)

type cliOptions struct {
	server   string
	clientID string
	timeout  time.Duration
	autoAck  bool
	logger   pslog.Logger
}

func newRootCommand(logger pslog.Logger) *cobra.Command {
	opts := &cliOptions{logger: logger}
	v := viper.New()
	v.SetEnvPrefix("STATESTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "statestore",
		Short:         "Interact with a state-store service over NATS",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyEnvOverrides(cmd.Flags(), v)
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", "nats://127.0.0.1:4222", "NATS server URL (STATESTORE_SERVER)")
	flags.StringVar(&opts.clientID, "client-id", "", "client identifier; generated when empty (STATESTORE_CLIENT_ID)")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-command response timeout (STATESTORE_TIMEOUT)")
	flags.BoolVar(&opts.autoAck, "auto-ack", true, "auto-acknowledge key notifications (STATESTORE_AUTO_ACK)")

	cmd.AddCommand(
		newSetCommand(opts),
		newGetCommand(opts),
		newDelCommand(opts),
		newVDelCommand(opts),
		newObserveCommand(opts),
		newUnobserveCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// applyEnvOverrides fills unset flags from STATESTORE_* environment values.
func applyEnvOverrides(flags *pflag.FlagSet, v *viper.Viper) error {
	var err error
	flags.VisitAll(func(flag *pflag.Flag) {
		if err != nil || flag.Changed {
			return
		}
		if !v.IsSet(flag.Name) {
			return
		}
		if setErr := flags.Set(flag.Name, v.GetString(flag.Name)); setErr != nil {
			err = fmt.Errorf("flag --%s from environment: %w", flag.Name, setErr)
		}
	})
	return err
}

// dial connects the transport and builds a client for one CLI invocation.
func (o *cliOptions) dial(ctx context.Context) (*natstransport.Transport, *client.Client, error) {
	tr, err := natstransport.Dial(ctx, natstransport.Config{
		URL:      o.server,
		ClientID: o.clientID,
	})
	if err != nil {
		return nil, nil, err
	}
	cli, err := client.New(ctx, tr.Binding(), tr.Monitor(),
		client.WithLogger(o.logger),
		client.WithAutoAck(o.autoAck),
	)
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	return tr, cli, nil
}
