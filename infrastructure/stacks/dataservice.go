package stacks

import (
	"fmt"
	"path/filepath"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/dj-d/futura-city/infrastructure/services"
)

// HandlerSpec names one request handler and the build directory of its artifact.
type HandlerSpec struct {
	ID          string
	Name        string
	Description string
	// Artifact is the directory under the lambda build dir holding bootstrap.
	Artifact string
}

// dataService is the part shared by the subsystems that serve a MySQL table
// through request handlers: an isolated network reaching Secrets Manager and
// Lambda through interface endpoints, the database and its security groups.
type dataService struct {
	prefix   services.ServicePrefix
	network  *services.Network
	rdsSG    *services.SecurityGroup
	lambdaSG *services.SecurityGroup
	database *services.Database
	subnet   string
}

func isolatedSubnets() []services.SubnetSpec {
	return []services.SubnetSpec{
		{Type: services.SubnetPrivateIsolated, ID: "private-subnet", CIDRMask: 28},
	}
}

func newDataService(ctx *pulumi.Context, prefix services.ServicePrefix, netCfg services.NetworkConfig, subnets []services.SubnetSpec, dbCfg services.DatabaseConfig, opts ...pulumi.ResourceOption) (*dataService, error) {
	// 1. Network
	network, err := services.NewNetwork(ctx, prefix, netCfg, subnets, opts...)
	if err != nil {
		return nil, err
	}

	subnet := dbCfg.SubnetGroup
	endpoints := []struct{ id, service string }{
		{"secrets-manager-endpoint", services.EndpointSecretsManager},
		{"lambda-endpoint", services.EndpointLambda},
	}
	for _, ep := range endpoints {
		if _, err := services.AddInterfaceEndpoint(ctx, prefix, network, ep.id, ep.service, subnet, opts...); err != nil {
			return nil, err
		}
	}

	// 2. Security groups
	rdsSG, err := services.NewSecurityGroup(ctx, prefix, services.SecurityGroupConfig{
		ID:          "rds",
		Name:        "Rds",
		Description: "Security group for MySQL",
		Network:     network,
	}, opts...)
	if err != nil {
		return nil, err
	}

	lambdaSG, err := services.NewSecurityGroup(ctx, prefix, services.SecurityGroupConfig{
		ID:          "lambda",
		Name:        "Lambda",
		Description: "Security group for Lambda",
		Network:     network,
	}, opts...)
	if err != nil {
		return nil, err
	}

	if _, err := rdsSG.AllowDefaultPortFrom(lambdaSG); err != nil {
		return nil, err
	}

	// 3. Database
	dbCfg.Network = network
	dbCfg.SecurityGroups = []*services.SecurityGroup{rdsSG}
	database, err := services.NewMySQLInstance(ctx, prefix, dbCfg, opts...)
	if err != nil {
		return nil, err
	}

	return &dataService{
		prefix:   prefix,
		network:  network,
		rdsSG:    rdsSG,
		lambdaSG: lambdaSG,
		database: database,
		subnet:   subnet,
	}, nil
}

// newHandler deploys a request handler with read access to the database secret.
func (s *dataService) newHandler(ctx *pulumi.Context, spec HandlerSpec, buildDir, table string, opts ...pulumi.ResourceOption) (*services.Function, error) {
	cfg := services.DefaultFunctionConfig()
	cfg.Network = s.network
	cfg.SubnetGroup = s.subnet
	cfg.ID = spec.ID
	cfg.Name = spec.Name
	cfg.Description = spec.Description
	cfg.SourcePath = filepath.Join(buildDir, spec.Artifact)
	cfg.SecurityGroups = []*services.SecurityGroup{s.lambdaSG}
	cfg.Environment = map[string]pulumi.StringInput{
		"DB_SECRET_ARN": s.database.SecretArn,
		"TABLE_NAME":    pulumi.String(table),
	}

	fn, err := services.NewFunction(ctx, s.prefix, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.ID, err)
	}
	if _, err := fn.AddToRolePolicy("secret-read", services.SecretReadPolicy(s.database.SecretArn)); err != nil {
		return nil, err
	}
	return fn, nil
}
