package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"grimm.is/netemstate/internal/console"
)

func (a *app) ovsConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   toolOVSConsole + " SW_NAME",
		Short: "Interactive VLAN console for an Open vSwitch bridge",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("you must enter an ovs switch name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := console.New(a.ovsClient(a.exec), args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return c.Run(cmd.Context())
		},
	}
}
