package stacks

import (
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/dj-d/futura-city/infrastructure/services"
)

const dataAnalyticsType = "futura-city:stacks:DataAnalytics"

// DataAnalyticsConfig configures NewDataAnalytics.
type DataAnalyticsConfig struct {
	Prefix  services.ServicePrefix
	Network services.NetworkConfig
	Subnets []services.SubnetSpec
	// SSHAllowedCIDR may reach the bastion on port 22. Empty keeps the
	// bastion reachable through SSM only.
	SSHAllowedCIDR string
	Bucket         services.BucketConfig
	KeyPair        services.KeyPairConfig
	Worker         services.InstanceConfig
	Bastion        services.BastionConfig
	Assets         Assets
}

// DefaultDataAnalyticsConfig returns the data analytics subsystem in 10.0.0.0/24.
func DefaultDataAnalyticsConfig() DataAnalyticsConfig {
	worker := services.DefaultInstanceConfig()
	worker.ID = "worker"
	worker.Name = "Worker"

	return DataAnalyticsConfig{
		Prefix:  services.ServicePrefix{ID: "da-", Name: "DA"},
		Network: services.DefaultNetworkConfig(),
		Subnets: []services.SubnetSpec{
			{Type: services.SubnetPublic, ID: "public-subnet", CIDRMask: 28},
			{Type: services.SubnetPrivateIsolated, ID: "private-subnet", CIDRMask: 28},
		},
		Bucket: services.BucketConfig{
			ID:                "data",
			RemovalPolicy:     services.RemovalPolicyDestroy,
			BlockPublicAccess: true,
			AutoDeleteObjects: true,
		},
		KeyPair: services.KeyPairConfig{ID: "ssh-key", KeyName: "SshKey", KeyType: services.KeyTypeRSA},
		Worker:  worker,
		Bastion: services.DefaultBastionConfig(),
	}
}

// DataAnalytics is the data analytics subsystem: a worker instance in an
// isolated subnet reading a data bucket, reachable through a bastion.
type DataAnalytics struct {
	pulumi.ResourceState

	Network    *services.Network
	S3Endpoint *ec2.VpcEndpoint
	Bucket     *services.Bucket
	KeyPair    *services.KeyPair
	Worker     *services.Instance
	Bastion    *services.Instance
}

// NewDataAnalytics assembles the subsystem. The bastion is skipped when no SSH
// key was loaded.
func NewDataAnalytics(ctx *pulumi.Context, name string, cfg DataAnalyticsConfig, opts ...pulumi.ResourceOption) (*DataAnalytics, error) {
	if _, err := services.NewServicePrefix(cfg.Prefix.ID, cfg.Prefix.Name); err != nil {
		return nil, err
	}

	stack := &DataAnalytics{}
	if err := ctx.RegisterComponentResource(dataAnalyticsType, name, stack, opts...); err != nil {
		return nil, err
	}
	parent := pulumi.Parent(stack)
	prefix := cfg.Prefix

	// 1. Network
	network, err := services.NewNetwork(ctx, prefix, cfg.Network, cfg.Subnets, parent)
	if err != nil {
		return nil, err
	}
	stack.Network = network

	// The worker subnets have no internet route: S3 (bucket and dnf
	// repositories) goes through a gateway endpoint, Session Manager through
	// interface endpoints.
	stack.S3Endpoint, err = services.AddGatewayEndpoint(ctx, prefix, network, "s3-endpoint", services.EndpointS3, cfg.Worker.SubnetGroup, parent)
	if err != nil {
		return nil, err
	}
	for _, ep := range []struct{ id, service string }{
		{"ssm-endpoint", services.EndpointSSM},
		{"ssm-messages-endpoint", services.EndpointSSMMessages},
		{"ec2-messages-endpoint", services.EndpointEC2Messages},
	} {
		if _, err := services.AddInterfaceEndpoint(ctx, prefix, network, ep.id, ep.service, cfg.Worker.SubnetGroup, parent); err != nil {
			return nil, err
		}
	}

	// 2. Security groups
	bastionSG, err := services.NewSecurityGroup(ctx, prefix, services.SecurityGroupConfig{
		ID:          "bastion",
		Name:        "Bastion",
		Description: "Security group for the bastion host",
		Network:     network,
	}, parent)
	if err != nil {
		return nil, err
	}
	if cfg.SSHAllowedCIDR != "" {
		if _, err := bastionSG.AddIngressRule(services.IngressRule{
			Description: "SSH from the allowed CIDR",
			FromPort:    22,
			ToPort:      22,
			CIDR:        cfg.SSHAllowedCIDR,
		}); err != nil {
			return nil, err
		}
	}

	workerSG, err := services.NewSecurityGroup(ctx, prefix, services.SecurityGroupConfig{
		ID:          "worker",
		Name:        "Worker",
		Description: "Security group for the analytics worker",
		Network:     network,
	}, parent)
	if err != nil {
		return nil, err
	}
	if _, err := workerSG.AddIngressRule(services.IngressRule{
		Description: "SSH from the bastion host",
		FromPort:    22,
		ToPort:      22,
		Source:      bastionSG,
	}); err != nil {
		return nil, err
	}

	// 3. Data bucket and worker role
	stack.Bucket, err = services.NewBucket(ctx, prefix, cfg.Bucket, parent)
	if err != nil {
		return nil, err
	}

	workerRole, err := services.NewRoleWithInlinePolicy(ctx, prefix, services.RoleConfig{
		ID:          cfg.Worker.ID + "-role",
		Name:        services.CamelCase(cfg.Worker.ID) + "Role",
		Description: "Role of the analytics worker",
		AssumedBy:   "ec2.amazonaws.com",
		InlinePolicies: map[string][]services.PolicyStatement{
			"data-bucket": {{
				Sid:       "DataBucketAccess",
				Actions:   []string{"s3:GetObject", "s3:PutObject", "s3:ListBucket"},
				Resources: []pulumi.StringInput{stack.Bucket.Bucket.Arn, stack.Bucket.ObjectsArn},
			}},
		},
		ManagedPolicyArns: []string{services.SSMManagedInstancePolicy},
	}, parent)
	if err != nil {
		return nil, err
	}

	// 4. Key pair and worker
	stack.KeyPair, err = services.NewKeyPair(ctx, prefix, cfg.KeyPair, parent)
	if err != nil {
		return nil, err
	}

	worker := cfg.Worker
	worker.Network = network
	worker.SecurityGroup = workerSG
	worker.Role = workerRole
	worker.KeyName = stack.KeyPair.KeyName
	worker.UserData = cfg.Assets.BootScript
	stack.Worker, err = services.NewInstance(ctx, prefix, worker, parent)
	if err != nil {
		return nil, err
	}

	// 5. Bastion
	if cfg.Assets.SSHPrivateKey != "" {
		bastion := cfg.Bastion
		bastion.Network = network
		bastion.SecurityGroup = bastionSG
		bastion.KeyName = stack.KeyPair.KeyName
		bastion.SSHPrivateKey = cfg.Assets.SSHPrivateKey
		stack.Bastion, err = services.NewBastionHost(ctx, prefix, bastion, parent)
		if err != nil {
			return nil, err
		}
	} else {
		ctx.Log.Info("data analytics: no SSH key loaded, skipping bastion host", nil)
	}

	outputs := pulumi.Map{
		"bucketName": stack.Bucket.Bucket.ID(),
		"workerId":   stack.Worker.Instance.ID(),
		"keyName":    stack.KeyPair.KeyName,
	}
	if stack.Bastion != nil {
		outputs["bastionPublicIp"] = stack.Bastion.Instance.PublicIp
	}
	if err := ctx.RegisterResourceOutputs(stack, outputs); err != nil {
		return nil, err
	}
	return stack, nil
}
