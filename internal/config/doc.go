// Package config loads the settings shared by every netemstate tool.
//
// # Overview
//
// Settings come from an optional HCL file (JSON is accepted as well, chosen
// by extension). A missing default file is not an error: every field has a
// usable default, see [Default]. Command line flags are applied on top by
// the caller and the result is checked with [Settings.Validate].
//
// # Blocks
//
//	retry {
//	  attempts = 10      # whole-pass apply attempts
//	  delay    = "100ms" # pause between attempts
//	}
//
//	host {
//	  interface_prefix = "eth"  # plain interfaces captured without --all
//	  netns            = ""     # network namespace, name or path
//	}
//
//	switch {
//	  vsctl   = "ovs-vsctl"
//	  appctl  = "ovs-appctl"
//	  timeout = 30              # ovs-vsctl --timeout, 0 disables it
//	}
//
//	log {
//	  level = "warn"
//	  json  = false
//	}
//
//	metrics {
//	  textfile = ""  # node-exporter textfile collector output
//	}
package config
