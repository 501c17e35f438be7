package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/dj-d/futura-city/infrastructure/services"
	"github.com/dj-d/futura-city/infrastructure/stacks"
)

func main() {
	pulumi.Run(run)
}

func run(ctx *pulumi.Context) error {
	cfg, err := loadProgramConfig(ctx)
	if err != nil {
		return err
	}

	// Local files are read once, before any resource is declared
	assets, err := stacks.LoadAssets(cfg.BastionSSHKeyPath, cfg.BootScriptPath)
	if err != nil {
		return err
	}

	da := stacks.DefaultDataAnalyticsConfig()
	da.SSHAllowedCIDR = cfg.SSHAllowedCIDR
	da.Assets = assets

	ee := stacks.DefaultEnergyEfficiencyConfig()
	ee.LambdaBuildDir = cfg.LambdaBuildDir
	if cfg.HostingRepository != "" && cfg.hasHostingToken {
		ee.Hosting = &services.HostingConfig{
			ID:          "hosting",
			Name:        "Hosting",
			Repository:  cfg.HostingRepository,
			Branch:      cfg.HostingBranch,
			AccessToken: cfg.HostingAccessToken,
		}
	}

	st := stacks.DefaultSmartTrafficConfig()
	st.LambdaBuildDir = cfg.LambdaBuildDir

	var cidrs []string
	if cfg.enabled(subsystemDataAnalytics) {
		cidrs = append(cidrs, da.Network.CIDR)
	}
	if cfg.enabled(subsystemEnergyEfficiency) {
		cidrs = append(cidrs, ee.Network.CIDR)
	}
	if cfg.enabled(subsystemSmartTraffic) {
		cidrs = append(cidrs, st.Network.CIDR)
	}
	if err := services.VerifyNoOverlap(cidrs); err != nil {
		return err
	}

	// 1. Data analytics
	if cfg.enabled(subsystemDataAnalytics) {
		dataAnalytics, err := stacks.NewDataAnalytics(ctx, subsystemDataAnalytics, da)
		if err != nil {
			return err
		}
		ctx.Export("daBucketName", dataAnalytics.Bucket.Bucket.ID())
		ctx.Export("daKeyName", dataAnalytics.KeyPair.KeyName)
		if dataAnalytics.Bastion != nil {
			ctx.Export("daBastionPublicIp", dataAnalytics.Bastion.Instance.PublicIp)
		}
	}

	// 2. Energy efficiency
	if cfg.enabled(subsystemEnergyEfficiency) {
		energyEfficiency, err := stacks.NewEnergyEfficiency(ctx, subsystemEnergyEfficiency, ee)
		if err != nil {
			return err
		}
		ctx.Export("eeApiUrl", energyEfficiency.API.URL)
		ctx.Export("eeDbSecretArn", energyEfficiency.Database.SecretArn)
		ctx.Export("eeIdentityPoolId", energyEfficiency.IdentityPool.Pool.ID())
		if energyEfficiency.Hosting != nil {
			ctx.Export("eeHostingUrl", energyEfficiency.Hosting.URL)
		}
	}

	// 3. Smart traffic
	if cfg.enabled(subsystemSmartTraffic) {
		smartTraffic, err := stacks.NewSmartTraffic(ctx, subsystemSmartTraffic, st)
		if err != nil {
			return err
		}
		ctx.Export("stApiUrl", smartTraffic.API.URL)
		ctx.Export("stDbSecretArn", smartTraffic.Database.SecretArn)
	}

	return nil
}
