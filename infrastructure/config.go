package main

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

const configNamespace = "futura-city"

// Subsystem names accepted in the subsystems config list.
const (
	subsystemDataAnalytics    = "data-analytics"
	subsystemEnergyEfficiency = "energy-efficiency"
	subsystemSmartTraffic     = "smart-traffic"
)

var allSubsystems = []string{subsystemDataAnalytics, subsystemEnergyEfficiency, subsystemSmartTraffic}

// programConfig is the stack configuration of the program.
type programConfig struct {
	Subsystems        []string
	LambdaBuildDir    string
	BastionSSHKeyPath string
	BootScriptPath    string
	SSHAllowedCIDR    string

	HostingRepository  string
	HostingBranch      string
	HostingAccessToken pulumi.StringOutput
	hasHostingToken    bool
}

func (c *programConfig) enabled(subsystem string) bool {
	for _, s := range c.Subsystems {
		if s == subsystem {
			return true
		}
	}
	return false
}

// loadProgramConfig reads the futura-city namespace. Every key is optional.
func loadProgramConfig(ctx *pulumi.Context) (*programConfig, error) {
	cfg := config.New(ctx, configNamespace)

	pc := &programConfig{
		Subsystems:        allSubsystems,
		LambdaBuildDir:    "../build",
		BastionSSHKeyPath: cfg.Get("bastionSshKeyPath"),
		BootScriptPath:    cfg.Get("bootScriptPath"),
		SSHAllowedCIDR:    cfg.Get("sshAllowedCidr"),
		HostingRepository: cfg.Get("hostingRepository"),
		HostingBranch:     cfg.Get("hostingBranch"),
	}

	if dir := cfg.Get("lambdaBuildDir"); dir != "" {
		pc.LambdaBuildDir = dir
	}

	if cfg.Get("subsystems") != "" {
		var subsystems []string
		if err := cfg.GetObject("subsystems", &subsystems); err != nil {
			return nil, fmt.Errorf("read %s:subsystems: %w", configNamespace, err)
		}
		for _, s := range subsystems {
			if !known(s) {
				return nil, fmt.Errorf("unknown subsystem %q, expected one of %v", s, allSubsystems)
			}
		}
		pc.Subsystems = subsystems
	}

	if token, err := cfg.TrySecret("hostingAccessToken"); err == nil {
		pc.HostingAccessToken = token
		pc.hasHostingToken = true
	}

	return pc, nil
}

func known(subsystem string) bool {
	for _, s := range allSubsystems {
		if s == subsystem {
			return true
		}
	}
	return false
}
