package stacks

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/dj-d/futura-city/infrastructure/services"
)

const energyEfficiencyType = "futura-city:stacks:EnergyEfficiency"

// EnergyEfficiencyConfig configures NewEnergyEfficiency.
type EnergyEfficiencyConfig struct {
	Prefix         services.ServicePrefix
	Network        services.NetworkConfig
	Subnets        []services.SubnetSpec
	Database       services.DatabaseConfig
	LambdaBuildDir string
	TableName      string
	Endpoint       string
	AllowedMethods []string
	Init           HandlerSpec
	Read           HandlerSpec
	Write          HandlerSpec
	// Hosting is optional. The API URL is added to its environment.
	Hosting *services.HostingConfig
}

// DefaultEnergyEfficiencyConfig returns the energy efficiency subsystem in 10.1.0.0/24.
func DefaultEnergyEfficiencyConfig() EnergyEfficiencyConfig {
	network := services.DefaultNetworkConfig()
	network.CIDR = "10.1.0.0/24"

	return EnergyEfficiencyConfig{
		Prefix:         services.ServicePrefix{ID: "ee-", Name: "Ee"},
		Network:        network,
		Subnets:        isolatedSubnets(),
		Database:       services.DefaultDatabaseConfig(),
		LambdaBuildDir: "../build",
		TableName:      "energy_efficiency",
		Endpoint:       "energy-efficiency",
		AllowedMethods: []string{"GET", "POST"},
		Init: HandlerSpec{
			ID:          "lambda-init",
			Name:        "LambdaInit",
			Description: `Initialize or Delete the database table "energy_efficiency"`,
			Artifact:    "init",
		},
		Read: HandlerSpec{
			ID:          "lambda-read",
			Name:        "LambdaRead",
			Description: `Read all data from the database table "energy_efficiency"`,
			Artifact:    "read",
		},
		Write: HandlerSpec{
			ID:          "lambda-write",
			Name:        "LambdaWrite",
			Description: `Write data to the database table "energy_efficiency"`,
			Artifact:    "write",
		},
	}
}

// EnergyEfficiency is the energy efficiency subsystem: a MySQL table served
// by init/read/write handlers behind a REST façade.
type EnergyEfficiency struct {
	pulumi.ResourceState

	Network      *services.Network
	Database     *services.Database
	Init         *services.Function
	Read         *services.Function
	Write        *services.Function
	API          *APIGateway
	IdentityPool *services.IdentityPool
	Hosting      *services.Hosting
}

// NewEnergyEfficiency assembles the subsystem.
func NewEnergyEfficiency(ctx *pulumi.Context, name string, cfg EnergyEfficiencyConfig, opts ...pulumi.ResourceOption) (*EnergyEfficiency, error) {
	if _, err := services.NewServicePrefix(cfg.Prefix.ID, cfg.Prefix.Name); err != nil {
		return nil, err
	}

	stack := &EnergyEfficiency{}
	if err := ctx.RegisterComponentResource(energyEfficiencyType, name, stack, opts...); err != nil {
		return nil, err
	}
	parent := pulumi.Parent(stack)
	prefix := cfg.Prefix

	// 1. Network, security groups and database
	data, err := newDataService(ctx, prefix, cfg.Network, cfg.Subnets, cfg.Database, parent)
	if err != nil {
		return nil, err
	}
	stack.Network = data.network
	stack.Database = data.database

	// 2. Request handlers
	if stack.Init, err = data.newHandler(ctx, cfg.Init, cfg.LambdaBuildDir, cfg.TableName, parent); err != nil {
		return nil, err
	}
	if stack.Read, err = data.newHandler(ctx, cfg.Read, cfg.LambdaBuildDir, cfg.TableName, parent); err != nil {
		return nil, err
	}
	if stack.Write, err = data.newHandler(ctx, cfg.Write, cfg.LambdaBuildDir, cfg.TableName, parent); err != nil {
		return nil, err
	}

	// 3. REST façade
	stack.API, err = NewAPIGateway(ctx, prefix.ResourceID("api"), &APIGatewayArgs{
		Prefix:         prefix,
		Description:    "REST API of the energy efficiency subsystem",
		Endpoint:       cfg.Endpoint,
		AllowedMethods: cfg.AllowedMethods,
		Models: []APIModel{
			{Method: "GET", Function: stack.Read},
			{Method: "POST", Function: stack.Write},
		},
	}, parent)
	if err != nil {
		return nil, err
	}

	// 4. Identity pool, guests may call the API
	stack.IdentityPool, err = services.NewIdentityPool(ctx, prefix, services.IdentityPoolConfig{
		ID:                   "identity-pool",
		Name:                 "IdentityPool",
		AllowUnauthenticated: true,
		GuestPolicies: []services.PolicyStatement{{
			Sid:       "InvokeApi",
			Actions:   []string{"execute-api:Invoke"},
			Resources: []pulumi.StringInput{stack.API.ExecuteArn},
		}},
	}, parent)
	if err != nil {
		return nil, err
	}

	// 5. Frontend hosting
	if cfg.Hosting != nil {
		hosting := *cfg.Hosting
		env := map[string]pulumi.StringInput{}
		for k, v := range hosting.Environment {
			env[k] = v
		}
		env["API_URL"] = stack.API.URL
		env["IDENTITY_POOL_ID"] = stack.IdentityPool.Pool.ID().ToStringOutput()
		hosting.Environment = env

		if stack.Hosting, err = services.NewHosting(ctx, prefix, hosting, parent); err != nil {
			return nil, err
		}
	} else {
		ctx.Log.Info("energy efficiency: no hosting repository configured, skipping frontend hosting", nil)
	}

	// 6. Publish endpoints
	if _, err := services.PublishParameter(ctx, prefix, "api-url", stack.API.URL, parent); err != nil {
		return nil, err
	}
	if _, err := services.PublishParameter(ctx, prefix, "db-secret-arn", data.database.SecretArn, parent); err != nil {
		return nil, err
	}

	outputs := pulumi.Map{
		"apiUrl":         stack.API.URL,
		"dbSecretArn":    data.database.SecretArn,
		"identityPoolId": stack.IdentityPool.Pool.ID(),
	}
	if stack.Hosting != nil {
		outputs["hostingUrl"] = stack.Hosting.URL
	}
	if err := ctx.RegisterResourceOutputs(stack, outputs); err != nil {
		return nil, err
	}
	return stack, nil
}
