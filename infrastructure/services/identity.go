package services

import (
	"encoding/json"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/cognito"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// IdentityPoolConfig describes a Cognito identity pool.
type IdentityPoolConfig struct {
	ID                   string
	Name                 string
	AllowUnauthenticated bool
	// GuestPolicies are attached to the role of unauthenticated identities.
	GuestPolicies []PolicyStatement
}

// IdentityPool is a Cognito identity pool with its two federated roles.
type IdentityPool struct {
	Pool              *cognito.IdentityPool
	AuthenticatedRole *iam.Role
	GuestRole         *iam.Role
}

// NewIdentityPool creates an identity pool and the roles its identities assume.
func NewIdentityPool(ctx *pulumi.Context, prefix ServicePrefix, cfg IdentityPoolConfig, opts ...pulumi.ResourceOption) (*IdentityPool, error) {
	id := prefix.ResourceID(cfg.ID)
	name := prefix.ResourceName(nameOrDerived(cfg.Name, cfg.ID))

	pool, err := cognito.NewIdentityPool(ctx, id, &cognito.IdentityPoolArgs{
		IdentityPoolName:               pulumi.String(name),
		AllowUnauthenticatedIdentities: pulumi.Bool(cfg.AllowUnauthenticated),
		Tags:                           nameTags(name),
	}, opts...)
	if err != nil {
		return nil, err
	}

	authRole, err := iam.NewRole(ctx, id+"-authenticated", &iam.RoleArgs{
		AssumeRolePolicy: identityTrustPolicy(pool.ID(), "authenticated"),
		Tags:             nameTags(name + "AuthenticatedRole"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	guestRole, err := iam.NewRole(ctx, id+"-guest", &iam.RoleArgs{
		AssumeRolePolicy: identityTrustPolicy(pool.ID(), "unauthenticated"),
		Tags:             nameTags(name + "GuestRole"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	if len(cfg.GuestPolicies) > 0 {
		_, err = iam.NewRolePolicy(ctx, id+"-guest-policy", &iam.RolePolicyArgs{
			Role:   guestRole.Name,
			Policy: RenderPolicyDocument(cfg.GuestPolicies...),
		}, opts...)
		if err != nil {
			return nil, err
		}
	}

	_, err = cognito.NewIdentityPoolRoleAttachment(ctx, id+"-roles", &cognito.IdentityPoolRoleAttachmentArgs{
		IdentityPoolId: pool.ID(),
		Roles: pulumi.StringMap{
			"authenticated":   authRole.Arn,
			"unauthenticated": guestRole.Arn,
		},
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &IdentityPool{
		Pool:              pool,
		AuthenticatedRole: authRole,
		GuestRole:         guestRole,
	}, nil
}

func identityTrustPolicy(poolID pulumi.IDOutput, amr string) pulumi.StringOutput {
	return poolID.ApplyT(func(id pulumi.ID) (string, error) {
		doc := map[string]interface{}{
			"Version": policyVersion,
			"Statement": []map[string]interface{}{{
				"Effect":    "Allow",
				"Principal": map[string]string{"Federated": "cognito-identity.amazonaws.com"},
				"Action":    "sts:AssumeRoleWithWebIdentity",
				"Condition": map[string]interface{}{
					"StringEquals": map[string]string{
						"cognito-identity.amazonaws.com:aud": string(id),
					},
					"ForAnyValue:StringLike": map[string]string{
						"cognito-identity.amazonaws.com:amr": amr,
					},
				},
			}},
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}).(pulumi.StringOutput)
}
