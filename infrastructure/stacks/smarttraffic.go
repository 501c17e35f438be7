package stacks

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/dj-d/futura-city/infrastructure/services"
)

const smartTrafficType = "futura-city:stacks:SmartTraffic"

// SmartTrafficConfig configures NewSmartTraffic.
type SmartTrafficConfig struct {
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
}

// DefaultSmartTrafficConfig returns the smart traffic subsystem in 10.2.0.0/24.
func DefaultSmartTrafficConfig() SmartTrafficConfig {
	network := services.DefaultNetworkConfig()
	network.CIDR = "10.2.0.0/24"

	return SmartTrafficConfig{
		Prefix:         services.ServicePrefix{ID: "st-", Name: "St"},
		Network:        network,
		Subnets:        isolatedSubnets(),
		Database:       services.DefaultDatabaseConfig(),
		LambdaBuildDir: "../build",
		TableName:      "smart_traffic",
		Endpoint:       "smart-traffic",
		AllowedMethods: []string{"GET"},
		Init: HandlerSpec{
			ID:          "lambda-init",
			Name:        "LambdaInit",
			Description: `Initialize or Delete the database table "smart_traffic"`,
			Artifact:    "init",
		},
		Read: HandlerSpec{
			ID:          "lambda-read",
			Name:        "LambdaRead",
			Description: `Read all data from the database table "smart_traffic"`,
			Artifact:    "read",
		},
	}
}

// SmartTraffic is the smart traffic subsystem, a read-only variant of energy
// efficiency.
type SmartTraffic struct {
	pulumi.ResourceState

	Network  *services.Network
	Database *services.Database
	Init     *services.Function
	Read     *services.Function
	API      *APIGateway
}

// NewSmartTraffic assembles the subsystem.
func NewSmartTraffic(ctx *pulumi.Context, name string, cfg SmartTrafficConfig, opts ...pulumi.ResourceOption) (*SmartTraffic, error) {
	if _, err := services.NewServicePrefix(cfg.Prefix.ID, cfg.Prefix.Name); err != nil {
		return nil, err
	}

	stack := &SmartTraffic{}
	if err := ctx.RegisterComponentResource(smartTrafficType, name, stack, opts...); err != nil {
		return nil, err
	}
	parent := pulumi.Parent(stack)
	prefix := cfg.Prefix

	data, err := newDataService(ctx, prefix, cfg.Network, cfg.Subnets, cfg.Database, parent)
	if err != nil {
		return nil, err
	}
	stack.Network = data.network
	stack.Database = data.database

	if stack.Init, err = data.newHandler(ctx, cfg.Init, cfg.LambdaBuildDir, cfg.TableName, parent); err != nil {
		return nil, err
	}
	if stack.Read, err = data.newHandler(ctx, cfg.Read, cfg.LambdaBuildDir, cfg.TableName, parent); err != nil {
		return nil, err
	}

	stack.API, err = NewAPIGateway(ctx, prefix.ResourceID("api"), &APIGatewayArgs{
		Prefix:         prefix,
		Description:    "REST API of the smart traffic subsystem",
		Endpoint:       cfg.Endpoint,
		AllowedMethods: cfg.AllowedMethods,
		Models: []APIModel{
			{Method: "GET", Function: stack.Read},
		},
	}, parent)
	if err != nil {
		return nil, err
	}

	if _, err := services.PublishParameter(ctx, prefix, "api-url", stack.API.URL, parent); err != nil {
		return nil, err
	}

	if err := ctx.RegisterResourceOutputs(stack, pulumi.Map{
		"apiUrl":      stack.API.URL,
		"dbSecretArn": data.database.SecretArn,
	}); err != nil {
		return nil, err
	}
	return stack, nil
}
