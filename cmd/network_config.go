package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/netemstate/internal/descriptor"
	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/network"
)

type networkConfigOptions struct {
	save   bool
	load   bool
	all    bool
	netns  string
	dryRun bool
}

func (a *app) networkConfigCommand() *cobra.Command {
	var opts networkConfigOptions
	cmd := &cobra.Command{
		Use:   toolNetworkConfig + " (-s|-l) [flags] <network file>",
		Short: "Save or load the interface, bond, VLAN and route configuration of a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runNetworkConfig(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.save, "save", "s", false, "save the live configuration to the file")
	f.BoolVarP(&opts.load, "load", "l", false, "apply the configuration in the file")
	f.BoolVarP(&opts.all, "all", "a", false, "save every interface, not only those matching the interface prefix")
	f.StringVar(&opts.netns, "netns", "", "operate in this network namespace (name or path)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the changes instead of applying them")
	cmd.MarkFlagsMutuallyExclusive("save", "load")
	cmd.MarkFlagsOneRequired("save", "load")
	return cmd
}

func (a *app) runNetworkConfig(cmd *cobra.Command, opts networkConfigOptions, path string) error {
	ns := a.settings.Host.NetNS
	if opts.netns != "" {
		ns = opts.netns
	}
	log := logging.WithComponent(toolNetworkConfig)

	// A load must not touch the system when the file is unusable.
	var host *descriptor.Host
	if opts.load {
		h, err := descriptor.LoadHost(path)
		if err != nil {
			return fmt.Errorf("unable to load configuration: %w", err)
		}
		host = h
	}

	nl, closeFn, err := a.netlinker(ns)
	if err != nil {
		return err
	}
	defer closeFn()

	start := time.Now()
	if opts.save {
		defer func() { a.metrics.ObserveRun(network.Tool, "save", time.Since(start)) }()

		capOpts := network.CaptureOptions{Prefix: a.settings.Host.InterfacePrefix, All: opts.all}
		h, err := network.NewCapturer(nl, capOpts, a.metrics).Capture()
		if err != nil {
			return fmt.Errorf("unable to save configuration: %w", err)
		}
		if opts.dryRun {
			data, err := descriptor.Marshal(h)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := descriptor.Save(path, h); err != nil {
			return fmt.Errorf("unable to save configuration: %w", err)
		}
		log.Info("saved host configuration", "file", path)
		return nil
	}

	defer func() { a.metrics.ObserveRun(network.Tool, "load", time.Since(start)) }()

	var dry *network.DryRunNetlinker
	if opts.dryRun {
		dry = network.NewDryRunNetlinker(nl)
		nl = dry
	}

	r := network.NewReconciler(nl, a.settings.RetryPolicy(), a.metrics)
	if err := r.Apply(cmd.Context(), host); err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}
	if dry != nil {
		for _, op := range dry.Recorded() {
			fmt.Fprintln(cmd.OutOrStdout(), op)
		}
	}
	log.Info("loaded host configuration", "file", path)
	return nil
}
