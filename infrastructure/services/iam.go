package services

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const policyVersion = "2012-10-17"

// Managed policies attached by the factories.
const (
	LambdaVPCAccessPolicyArn = "arn:aws:iam::aws:policy/service-role/AWSLambdaVPCAccessExecutionRole"
	SSMManagedInstancePolicy = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"
)

var secretAccessActions = []string{
	"secretsmanager:GetSecretValue",
	"secretsmanager:DescribeSecret",
	"secretsmanager:ListSecretVersionIds",
}

// PolicyStatement is an Allow statement whose resources may be unresolved
// outputs such as ARNs of resources created in the same program.
type PolicyStatement struct {
	Sid       string
	Actions   []string
	Resources []pulumi.StringInput
}

// SecretValueAccessPolicy allows reading the given secrets.
func SecretValueAccessPolicy(resources ...pulumi.StringInput) PolicyStatement {
	return PolicyStatement{
		Sid:       "SecretValueAccess",
		Actions:   secretAccessActions,
		Resources: resources,
	}
}

// LambdaBasePolicy allows reading any secret.
func LambdaBasePolicy() PolicyStatement {
	return PolicyStatement{
		Sid:       "LambdaBase",
		Actions:   secretAccessActions,
		Resources: []pulumi.StringInput{pulumi.String("*")},
	}
}

// SecretReadPolicy allows GetSecretValue on a single secret.
func SecretReadPolicy(secretArn pulumi.StringInput) PolicyStatement {
	return PolicyStatement{
		Sid:       "SecretRead",
		Actions:   []string{"secretsmanager:GetSecretValue"},
		Resources: []pulumi.StringInput{secretArn},
	}
}

type policyDocument struct {
	Version   string               `json:"Version"`
	Statement []policyStatementDoc `json:"Statement"`
}

type policyStatementDoc struct {
	Sid      string   `json:"Sid,omitempty"`
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

// RenderPolicyDocument renders the statements as an IAM policy JSON document
// once every resource output is known.
func RenderPolicyDocument(statements ...PolicyStatement) pulumi.StringOutput {
	var inputs []interface{}
	for _, s := range statements {
		for _, r := range s.Resources {
			inputs = append(inputs, r)
		}
	}

	return pulumi.All(inputs...).ApplyT(func(values []interface{}) (string, error) {
		doc := policyDocument{Version: policyVersion}
		i := 0
		for _, s := range statements {
			resources := make([]string, 0, len(s.Resources))
			for range s.Resources {
				resources = append(resources, values[i].(string))
				i++
			}
			doc.Statement = append(doc.Statement, policyStatementDoc{
				Sid:      s.Sid,
				Effect:   "Allow",
				Action:   s.Actions,
				Resource: resources,
			})
		}

		b, err := json.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}).(pulumi.StringOutput)
}

// AssumeRolePolicy returns the trust policy letting a service principal
// assume a role.
func AssumeRolePolicy(service string) string {
	doc := map[string]interface{}{
		"Version": policyVersion,
		"Statement": []map[string]interface{}{{
			"Action":    "sts:AssumeRole",
			"Effect":    "Allow",
			"Principal": map[string]string{"Service": service},
		}},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// RoleConfig describes an IAM role with inline and managed policies.
type RoleConfig struct {
	ID          string
	Name        string
	Description string
	// AssumedBy is the service principal, e.g. "lambda.amazonaws.com".
	AssumedBy         string
	InlinePolicies    map[string][]PolicyStatement
	ManagedPolicyArns []string
}

// NewRoleWithInlinePolicy creates a role trusted by cfg.AssumedBy.
func NewRoleWithInlinePolicy(ctx *pulumi.Context, prefix ServicePrefix, cfg RoleConfig, opts ...pulumi.ResourceOption) (*iam.Role, error) {
	if cfg.AssumedBy == "" {
		return nil, fmt.Errorf("role %s: missing service principal", prefix.ResourceID(cfg.ID))
	}

	names := make([]string, 0, len(cfg.InlinePolicies))
	for name := range cfg.InlinePolicies {
		names = append(names, name)
	}
	sort.Strings(names)

	inline := iam.RoleInlinePolicyArray{}
	for _, name := range names {
		inline = append(inline, &iam.RoleInlinePolicyArgs{
			Name:   pulumi.String(name),
			Policy: RenderPolicyDocument(cfg.InlinePolicies[name]...),
		})
	}

	managed := pulumi.StringArray{}
	for _, arn := range cfg.ManagedPolicyArns {
		managed = append(managed, pulumi.String(arn))
	}

	args := &iam.RoleArgs{
		Name:              pulumi.String(prefix.ResourceName(nameOrDerived(cfg.Name, cfg.ID))),
		AssumeRolePolicy:  pulumi.String(AssumeRolePolicy(cfg.AssumedBy)),
		InlinePolicies:    inline,
		ManagedPolicyArns: managed,
		Tags:              nameTags(prefix.ResourceName(nameOrDerived(cfg.Name, cfg.ID))),
	}
	if cfg.Description != "" {
		args.Description = pulumi.String(cfg.Description)
	}

	return iam.NewRole(ctx, prefix.ResourceID(cfg.ID), args, opts...)
}
