package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const bastionKeyDelimiter = "FUTURA_CITY_SSH_KEY"

// InstanceConfig describes an EC2 instance placed in the first subnet of a group.
type InstanceConfig struct {
	Network     *Network
	SubnetGroup string

	ID            string
	Name          string
	InstanceClass string
	InstanceSize  string
	// AMI defaults to the latest Amazon Linux 2023 image for the class architecture.
	AMI           string
	SecurityGroup *SecurityGroup
	Role          *iam.Role
	KeyName       pulumi.StringInput
	UserData      string
}

// DefaultInstanceConfig returns a t3.micro instance in the private subnets.
func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		SubnetGroup:   "private-subnet",
		InstanceClass: "t3",
		InstanceSize:  "micro",
	}
}

// Instance is an EC2 instance with its optional instance profile.
type Instance struct {
	Instance *ec2.Instance
	Profile  *iam.InstanceProfile
}

// NewInstance creates an EC2 instance. IMDSv2 is always required.
func NewInstance(ctx *pulumi.Context, prefix ServicePrefix, cfg InstanceConfig, opts ...pulumi.ResourceOption) (*Instance, error) {
	if cfg.Network == nil {
		return nil, errors.New("instance requires a network")
	}
	group, err := cfg.Network.SubnetGroup(cfg.SubnetGroup)
	if err != nil {
		return nil, err
	}

	id := prefix.ResourceID(cfg.ID)
	name := prefix.ResourceName(nameOrDerived(cfg.Name, cfg.ID))

	ami := cfg.AMI
	if ami == "" {
		ami, err = latestAmazonLinux(ctx, instanceArchitecture(cfg.InstanceClass))
		if err != nil {
			return nil, err
		}
	}

	args := &ec2.InstanceArgs{
		Ami:          pulumi.String(ami),
		InstanceType: pulumi.String(fmt.Sprintf("%s.%s", cfg.InstanceClass, cfg.InstanceSize)),
		SubnetId:     group.Subnets[0].ID(),
		MetadataOptions: &ec2.InstanceMetadataOptionsArgs{
			HttpEndpoint: pulumi.String("enabled"),
			HttpTokens:   pulumi.String("required"),
		},
		Tags: nameTags(name),
	}
	if cfg.SecurityGroup != nil {
		args.VpcSecurityGroupIds = pulumi.StringArray{cfg.SecurityGroup.Group.ID()}
	}
	if cfg.KeyName != nil {
		args.KeyName = cfg.KeyName
	}
	if cfg.UserData != "" {
		args.UserData = pulumi.String(cfg.UserData)
	}

	result := &Instance{}
	if cfg.Role != nil {
		// Create instance profile for the role
		profile, err := iam.NewInstanceProfile(ctx, id+"-profile", &iam.InstanceProfileArgs{
			Role: cfg.Role.Name,
			Tags: nameTags(name + "Profile"),
		}, opts...)
		if err != nil {
			return nil, err
		}
		args.IamInstanceProfile = profile.Name
		result.Profile = profile
	}

	instance, err := ec2.NewInstance(ctx, id, args, opts...)
	if err != nil {
		return nil, err
	}
	result.Instance = instance

	return result, nil
}

// BastionConfig describes the jump host of a subsystem.
type BastionConfig struct {
	Network     *Network
	SubnetGroup string

	ID            string
	Name          string
	InstanceClass string
	InstanceSize  string
	SecurityGroup *SecurityGroup
	KeyName       pulumi.StringInput
	// SSHPrivateKey is the key content written to /mnt/id_rsa on boot.
	SSHPrivateKey string
}

// DefaultBastionConfig returns a t3.micro bastion in the public subnets.
func DefaultBastionConfig() BastionConfig {
	return BastionConfig{
		SubnetGroup:   "public-subnet",
		ID:            "bastion-host",
		Name:          "BastionHost",
		InstanceClass: "t3",
		InstanceSize:  "micro",
	}
}

// NewBastionHost creates an Amazon Linux 2023 jump host managed through SSM.
// The loaded private key is written to /mnt/id_rsa so the host can reach the
// private instances.
func NewBastionHost(ctx *pulumi.Context, prefix ServicePrefix, cfg BastionConfig, opts ...pulumi.ResourceOption) (*Instance, error) {
	userData, err := BastionUserData(cfg.SSHPrivateKey)
	if err != nil {
		return nil, err
	}

	name := nameOrDerived(cfg.Name, cfg.ID)
	role, err := NewRoleWithInlinePolicy(ctx, prefix, RoleConfig{
		ID:                cfg.ID + "-role",
		Name:              name + "Role",
		Description:       fmt.Sprintf("Role of %s", prefix.ResourceName(name)),
		AssumedBy:         "ec2.amazonaws.com",
		ManagedPolicyArns: []string{SSMManagedInstancePolicy},
	}, opts...)
	if err != nil {
		return nil, err
	}

	return NewInstance(ctx, prefix, InstanceConfig{
		Network:       cfg.Network,
		SubnetGroup:   cfg.SubnetGroup,
		ID:            cfg.ID,
		Name:          name,
		InstanceClass: cfg.InstanceClass,
		InstanceSize:  cfg.InstanceSize,
		SecurityGroup: cfg.SecurityGroup,
		Role:          role,
		KeyName:       cfg.KeyName,
		UserData:      userData,
	}, opts...)
}

// BastionUserData renders the boot script that installs the SSH key.
func BastionUserData(privateKey string) (string, error) {
	key := strings.TrimRight(privateKey, "\n")
	if strings.TrimSpace(key) == "" {
		return "", errors.New("bastion requires an SSH private key")
	}
	for _, line := range strings.Split(key, "\n") {
		if strings.TrimSpace(line) == bastionKeyDelimiter {
			return "", errors.New("SSH private key contains the heredoc delimiter")
		}
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("set -euo pipefail\n")
	b.WriteString("cat > /mnt/id_rsa <<'" + bastionKeyDelimiter + "'\n")
	b.WriteString(key + "\n")
	b.WriteString(bastionKeyDelimiter + "\n")
	b.WriteString("chown ec2-user:ec2-user /mnt/id_rsa\n")
	b.WriteString("chmod 400 /mnt/id_rsa\n")
	return b.String(), nil
}

// instanceArchitecture maps an instance class to its AMI architecture.
// Graviton classes carry a "g" after the generation digit (t4g, m6gd, c7gn).
func instanceArchitecture(class string) string {
	rest := strings.TrimLeft(class, "abcdefghijklmnopqrstuvwxyz")
	rest = strings.TrimLeft(rest, "0123456789")
	if strings.Contains(rest, "g") {
		return "arm64"
	}
	return "x86_64"
}

func latestAmazonLinux(ctx *pulumi.Context, arch string) (string, error) {
	// Get the latest Amazon Linux 2023 AMI
	ami, err := ec2.LookupAmi(ctx, &ec2.LookupAmiArgs{
		Owners:     []string{"amazon"},
		MostRecent: pulumi.BoolRef(true),
		NameRegex:  pulumi.StringRef(fmt.Sprintf("^al2023-ami-2023.*-%s$", arch)),
		Filters: []ec2.GetAmiFilter{
			{
				Name:   "root-device-type",
				Values: []string{"ebs"},
			},
			{
				Name:   "virtualization-type",
				Values: []string{"hvm"},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("lookup Amazon Linux 2023 AMI: %w", err)
	}
	return ami.Id, nil
}
