package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/netemstate/internal/descriptor"
	"grimm.is/netemstate/internal/executor"
	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/ovs"
)

type ovsConfigOptions struct {
	conf   string
	action string
	dryRun bool
}

func (a *app) ovsClient(exec executor.CommandExecutor) *ovs.Client {
	return ovs.NewClient(exec, ovs.Options{
		VSCtl:   a.settings.Switch.VSCtl,
		AppCtl:  a.settings.Switch.AppCtl,
		Timeout: a.settings.Switch.Timeout,
	})
}

func (a *app) ovsConfigCommand() *cobra.Command {
	var opts ovsConfigOptions
	cmd := &cobra.Command{
		Use:   toolOVSConfig + " -c FILE -a save|load [flags] SW_NAME",
		Short: "Save or load the VLAN, bonding and spanning tree configuration of an Open vSwitch bridge",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("you must enter an ovs switch name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOVSConfig(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.conf, "conf", "c", "", "conf file to load/save")
	f.StringVarP(&opts.action, "action", "a", "", "action: load or save")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the ovs-vsctl commands instead of running them")
	return cmd
}

func (a *app) runOVSConfig(cmd *cobra.Command, opts ovsConfigOptions, bridge string) error {
	if opts.conf == "" {
		return errors.New("conf file is required")
	}
	if opts.action != "load" && opts.action != "save" {
		return errors.New("required action: load or save")
	}
	log := logging.WithComponent(toolOVSConfig)
	start := time.Now()
	defer func() { a.metrics.ObserveRun(ovs.Tool, opts.action, time.Since(start)) }()

	if opts.action == "save" {
		sw, err := ovs.NewCapturer(a.ovsClient(a.exec), a.metrics).Capture(bridge)
		if err != nil {
			return fmt.Errorf("unable to save configuration: %w", err)
		}
		if opts.dryRun {
			data, err := descriptor.Marshal(sw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := descriptor.Save(opts.conf, sw); err != nil {
			return fmt.Errorf("unable to save configuration: %w", err)
		}
		log.Info("saved switch configuration", "bridge", bridge, "file", opts.conf)
		return nil
	}

	sw, err := descriptor.LoadSwitch(opts.conf)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}

	exec := a.exec
	var dry *executor.DryRunExecutor
	if opts.dryRun {
		dry = executor.NewDryRunExecutor()
		exec = dry
	}

	r := ovs.NewReconciler(a.ovsClient(exec), a.settings.RetryPolicy(), a.metrics)
	if err := r.Apply(cmd.Context(), bridge, sw); err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}
	if dry != nil {
		for _, c := range dry.Recorded() {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
	}
	log.Info("loaded switch configuration", "bridge", bridge, "file", opts.conf)
	return nil
}
