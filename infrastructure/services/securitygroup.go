package services

import (
	"errors"
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// MySQLPort is the default port of the managed MySQL instances.
const MySQLPort = 3306

// SecurityGroupConfig describes a security group inside a Network.
type SecurityGroupConfig struct {
	ID               string
	Name             string
	Description      string
	Network          *Network
	RestrictOutbound bool
}

// SecurityGroup wraps the ec2 security group so callers can add rules after
// construction.
type SecurityGroup struct {
	Group *ec2.SecurityGroup
	ID    string

	ctx    *pulumi.Context
	prefix ServicePrefix
	opts   []pulumi.ResourceOption
	rules  int
}

// NewSecurityGroup creates a security group named prefix.ID + "sg-" + cfg.ID.
// All outbound traffic is allowed unless RestrictOutbound is set.
func NewSecurityGroup(ctx *pulumi.Context, prefix ServicePrefix, cfg SecurityGroupConfig, opts ...pulumi.ResourceOption) (*SecurityGroup, error) {
	if cfg.Network == nil {
		return nil, errors.New("security group requires a network")
	}

	name := nameOrDerived(cfg.Name, cfg.ID)
	description := cfg.Description
	if description == "" {
		description = fmt.Sprintf("%s security group", prefix.ResourceName(name))
	}

	args := &ec2.SecurityGroupArgs{
		VpcId:       cfg.Network.Vpc.ID(),
		Description: pulumi.String(description),
		Tags:        nameTags(prefix.ResourceName("Sg" + name)),
	}
	if !cfg.RestrictOutbound {
		args.Egress = allowAllEgress()
	}

	sg, err := ec2.NewSecurityGroup(ctx, prefix.ResourceID("sg-"+cfg.ID), args, opts...)
	if err != nil {
		return nil, err
	}

	return &SecurityGroup{
		Group:  sg,
		ID:     prefix.ResourceID("sg-" + cfg.ID),
		ctx:    ctx,
		prefix: prefix,
		opts:   opts,
	}, nil
}

// IngressRule is one inbound rule. Exactly one of CIDR or Source is set.
type IngressRule struct {
	Description string
	Protocol    string
	FromPort    int
	ToPort      int
	CIDR        string
	Source      *SecurityGroup
}

// AddIngressRule attaches an inbound rule to the group.
func (s *SecurityGroup) AddIngressRule(rule IngressRule) (*ec2.SecurityGroupRule, error) {
	if (rule.CIDR == "") == (rule.Source == nil) {
		return nil, errors.New("ingress rule needs exactly one of a CIDR or a source security group")
	}
	protocol := rule.Protocol
	if protocol == "" {
		protocol = "tcp"
	}

	s.rules++
	args := &ec2.SecurityGroupRuleArgs{
		Type:            pulumi.String("ingress"),
		SecurityGroupId: s.Group.ID(),
		Protocol:        pulumi.String(protocol),
		FromPort:        pulumi.Int(rule.FromPort),
		ToPort:          pulumi.Int(rule.ToPort),
	}
	if rule.Description != "" {
		args.Description = pulumi.String(rule.Description)
	}
	if rule.Source != nil {
		args.SourceSecurityGroupId = rule.Source.Group.ID()
	} else {
		args.CidrBlocks = pulumi.StringArray{pulumi.String(rule.CIDR)}
	}

	return ec2.NewSecurityGroupRule(s.ctx, fmt.Sprintf("%s-ingress-%d", s.ID, s.rules), args, s.opts...)
}

// AllowDefaultPortFrom opens the MySQL port to members of the peer group.
func (s *SecurityGroup) AllowDefaultPortFrom(peer *SecurityGroup) (*ec2.SecurityGroupRule, error) {
	return s.AddIngressRule(IngressRule{
		Description: fmt.Sprintf("MySQL from %s", peer.ID),
		FromPort:    MySQLPort,
		ToPort:      MySQLPort,
		Source:      peer,
	})
}

func allowAllEgress() ec2.SecurityGroupEgressArray {
	return ec2.SecurityGroupEgressArray{
		&ec2.SecurityGroupEgressArgs{
			Protocol:   pulumi.String("-1"),
			FromPort:   pulumi.Int(0),
			ToPort:     pulumi.Int(0),
			CidrBlocks: pulumi.StringArray{pulumi.String("0.0.0.0/0")},
		},
	}
}

func securityGroupIDs(groups []*SecurityGroup) pulumi.StringArray {
	ids := make(pulumi.StringArray, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.Group.ID())
	}
	return ids
}
