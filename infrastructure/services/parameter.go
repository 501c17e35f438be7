package services

import (
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ssm"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// ParameterPath returns the SSM path a subsystem publishes name under.
func ParameterPath(prefix ServicePrefix, name string) string {
	return "/futura-city/" + strings.TrimSuffix(prefix.ID, "-") + "/" + name
}

// PublishParameter stores a stack output in SSM Parameter Store so scripts and
// other stacks can read it without a stack reference.
func PublishParameter(ctx *pulumi.Context, prefix ServicePrefix, name string, value pulumi.StringInput, opts ...pulumi.ResourceOption) (*ssm.Parameter, error) {
	return ssm.NewParameter(ctx, prefix.ResourceID(name+"-param"), &ssm.ParameterArgs{
		Name:  pulumi.String(ParameterPath(prefix, name)),
		Type:  pulumi.String("String"),
		Value: value,
		Tags:  nameTags(prefix.ResourceName(CamelCase(name))),
	}, opts...)
}
