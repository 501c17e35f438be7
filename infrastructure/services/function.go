package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

var ErrMissingArtifact = errors.New("function artifact not found")

// FunctionConfig describes a Lambda function built from a local artifact.
type FunctionConfig struct {
	// Network is optional. When set the function runs in SubnetGroup.
	Network     *Network
	SubnetGroup string

	ID          string
	Name        string
	Description string
	// SourcePath is the directory holding the compiled artifact Index.
	SourcePath       string
	Index            string
	Handler          string
	Runtime          string
	Architecture     string
	Timeout          time.Duration
	MemorySize       int
	Environment      map[string]pulumi.StringInput
	SecurityGroups   []*SecurityGroup
	Role             *iam.Role
	LogRetentionDays int
}

// DefaultFunctionConfig returns the settings shared by the request handlers.
func DefaultFunctionConfig() FunctionConfig {
	return FunctionConfig{
		SubnetGroup:      "private-subnet",
		Index:            "bootstrap",
		Handler:          "bootstrap",
		Runtime:          "provided.al2023",
		Architecture:     "arm64",
		Timeout:          300 * time.Second,
		MemorySize:       256,
		LogRetentionDays: 14,
	}
}

// Function is a deployed Lambda function with its execution role.
type Function struct {
	Function *lambda.Function
	Role     *iam.Role
	LogGroup *cloudwatch.LogGroup
	ID       string

	ctx  *pulumi.Context
	opts []pulumi.ResourceOption
}

// NewFunction creates a Lambda function from SourcePath/Index. The artifact
// must exist when the program runs.
func NewFunction(ctx *pulumi.Context, prefix ServicePrefix, cfg FunctionConfig, opts ...pulumi.ResourceOption) (*Function, error) {
	artifact := filepath.Join(cfg.SourcePath, cfg.Index)
	if _, err := os.Stat(artifact); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingArtifact, artifact, err)
	}

	id := prefix.ResourceID(cfg.ID)
	name := prefix.ResourceName(nameOrDerived(cfg.Name, cfg.ID))

	role := cfg.Role
	if role == nil {
		var err error
		role, err = NewRoleWithInlinePolicy(ctx, prefix, RoleConfig{
			ID:                cfg.ID + "-role",
			Name:              nameOrDerived(cfg.Name, cfg.ID) + "Role",
			Description:       fmt.Sprintf("Execution role of %s", name),
			AssumedBy:         "lambda.amazonaws.com",
			ManagedPolicyArns: []string{LambdaVPCAccessPolicyArn},
		}, opts...)
		if err != nil {
			return nil, err
		}
	}

	// Create log group so retention is managed with the function
	logGroup, err := cloudwatch.NewLogGroup(ctx, id+"-logs", &cloudwatch.LogGroupArgs{
		Name:            pulumi.String("/aws/lambda/" + name),
		RetentionInDays: pulumi.Int(cfg.LogRetentionDays),
		Tags:            nameTags(name + "Logs"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	env := pulumi.StringMap{}
	for k, v := range cfg.Environment {
		env[k] = v
	}

	args := &lambda.FunctionArgs{
		Name:          pulumi.String(name),
		Role:          role.Arn,
		Runtime:       pulumi.String(cfg.Runtime),
		Handler:       pulumi.String(cfg.Handler),
		Architectures: pulumi.StringArray{pulumi.String(cfg.Architecture)},
		Code: pulumi.NewAssetArchive(map[string]interface{}{
			"bootstrap": pulumi.NewFileAsset(artifact),
		}),
		Timeout:    pulumi.Int(int(cfg.Timeout / time.Second)),
		MemorySize: pulumi.Int(cfg.MemorySize),
		Environment: &lambda.FunctionEnvironmentArgs{
			Variables: env,
		},
		Tags: nameTags(name),
	}
	if cfg.Description != "" {
		args.Description = pulumi.String(cfg.Description)
	}
	if cfg.Network != nil {
		subnetIDs, err := cfg.Network.SubnetIDs(cfg.SubnetGroup)
		if err != nil {
			return nil, err
		}
		args.VpcConfig = &lambda.FunctionVpcConfigArgs{
			SubnetIds:        subnetIDs,
			SecurityGroupIds: securityGroupIDs(cfg.SecurityGroups),
		}
	}

	fn, err := lambda.NewFunction(ctx, id, args, append(opts, pulumi.DependsOn([]pulumi.Resource{logGroup}))...)
	if err != nil {
		return nil, err
	}

	return &Function{
		Function: fn,
		Role:     role,
		LogGroup: logGroup,
		ID:       id,
		ctx:      ctx,
		opts:     opts,
	}, nil
}

// AddToRolePolicy attaches an inline policy to the execution role.
func (f *Function) AddToRolePolicy(id string, statements ...PolicyStatement) (*iam.RolePolicy, error) {
	if len(statements) == 0 {
		return nil, errors.New("policy needs at least one statement")
	}
	return iam.NewRolePolicy(f.ctx, fmt.Sprintf("%s-%s", f.ID, id), &iam.RolePolicyArgs{
		Role:   f.Role.Name,
		Policy: RenderPolicyDocument(statements...),
	}, f.opts...)
}
