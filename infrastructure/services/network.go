package services

import (
	"errors"
	"fmt"
	"net"
	"sort"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// SubnetType classifies a subnet group by its internet path.
type SubnetType string

const (
	SubnetPublic            SubnetType = "public"
	SubnetPrivateWithEgress SubnetType = "private-with-egress"
	SubnetPrivateIsolated   SubnetType = "private-isolated"
)

var (
	ErrSubnetSpaceExhausted = errors.New("subnet masks do not fit in the VPC CIDR")
	ErrUnknownSubnetGroup   = errors.New("unknown subnet group")
	ErrNoPublicSubnet       = errors.New("NAT gateways require a public subnet group")
	ErrOverlappingCIDR      = errors.New("overlapping VPC CIDR blocks")
)

// NetworkConfig describes the VPC of one subsystem.
type NetworkConfig struct {
	ID          string
	Name        string
	MaxAZs      int
	CIDR        string
	NatGateways int
	// AvailabilityZones pins the zones to use. When empty the zones are
	// looked up from the provider and the first MaxAZs are used.
	AvailabilityZones []string
}

// DefaultNetworkConfig returns a two-AZ /24 VPC without NAT gateways.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ID:          "vpc",
		Name:        "Vpc",
		MaxAZs:      2,
		CIDR:        "10.0.0.0/24",
		NatGateways: 0,
	}
}

// SubnetSpec declares one subnet group, replicated in every availability zone.
type SubnetSpec struct {
	Type     SubnetType
	ID       string
	CIDRMask int
}

// SubnetGroup is the set of subnets created for one SubnetSpec, one per zone.
type SubnetGroup struct {
	Name        string
	Type        SubnetType
	CIDRs       []string
	Subnets     []*ec2.Subnet
	RouteTables []*ec2.RouteTable
}

// IDs returns the subnet ids of the group.
func (g *SubnetGroup) IDs() pulumi.StringArray {
	ids := make(pulumi.StringArray, 0, len(g.Subnets))
	for _, s := range g.Subnets {
		ids = append(ids, s.ID())
	}
	return ids
}

// Network holds the VPC and its subnet groups in declaration order.
type Network struct {
	Vpc               *ec2.Vpc
	CIDR              string
	AvailabilityZones []string
	Groups            []*SubnetGroup
	InternetGateway   *ec2.InternetGateway
	NatGateways       []*ec2.NatGateway

	prefix ServicePrefix
}

// SubnetGroup returns the group created for the local subnet id.
func (n *Network) SubnetGroup(localID string) (*SubnetGroup, error) {
	name := n.prefix.ResourceID(localID)
	for _, g := range n.Groups {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSubnetGroup, name)
}

// SubnetIDs returns the subnet ids of the group created for the local subnet id.
func (n *Network) SubnetIDs(localID string) (pulumi.StringArray, error) {
	g, err := n.SubnetGroup(localID)
	if err != nil {
		return nil, err
	}
	return g.IDs(), nil
}

// NewNetwork creates a VPC with one subnet group per spec.
//
// Subnet CIDRs are carved from the VPC CIDR independently of the order of
// specs; the order only drives naming. With NatGateways == 0 every
// private-with-egress subnet is left without a default route.
func NewNetwork(ctx *pulumi.Context, prefix ServicePrefix, cfg NetworkConfig, specs []SubnetSpec, opts ...pulumi.ResourceOption) (*Network, error) {
	zones, err := availabilityZones(ctx, cfg)
	if err != nil {
		return nil, err
	}

	allocation, err := AllocateSubnets(cfg.CIDR, len(zones), specs)
	if err != nil {
		return nil, err
	}

	vpc, err := ec2.NewVpc(ctx, prefix.ResourceID(cfg.ID), &ec2.VpcArgs{
		CidrBlock:          pulumi.String(cfg.CIDR),
		EnableDnsSupport:   pulumi.Bool(true),
		EnableDnsHostnames: pulumi.Bool(true),
		Tags:               nameTags(prefix.ResourceName(nameOrDerived(cfg.Name, cfg.ID))),
	}, opts...)
	if err != nil {
		return nil, err
	}

	network := &Network{
		Vpc:               vpc,
		CIDR:              cfg.CIDR,
		AvailabilityZones: zones,
		prefix:            prefix,
	}

	var publicGroup *SubnetGroup
	hasEgress := false
	for _, spec := range specs {
		group := &SubnetGroup{
			Name:  prefix.ResourceID(spec.ID),
			Type:  spec.Type,
			CIDRs: allocation[spec.ID],
		}
		for i, zone := range zones {
			subnet, err := ec2.NewSubnet(ctx, fmt.Sprintf("%s-%d", group.Name, i+1), &ec2.SubnetArgs{
				VpcId:               vpc.ID(),
				CidrBlock:           pulumi.String(group.CIDRs[i]),
				AvailabilityZone:    pulumi.String(zone),
				MapPublicIpOnLaunch: pulumi.Bool(spec.Type == SubnetPublic),
				Tags: pulumi.StringMap{
					"Name":       pulumi.String(fmt.Sprintf("%s%s%d", prefix.Name, CamelCase(spec.ID), i+1)),
					"SubnetType": pulumi.String(string(spec.Type)),
				},
			}, opts...)
			if err != nil {
				return nil, err
			}
			group.Subnets = append(group.Subnets, subnet)
		}

		switch spec.Type {
		case SubnetPublic:
			if publicGroup == nil {
				publicGroup = group
			}
		case SubnetPrivateWithEgress:
			hasEgress = true
		}
		network.Groups = append(network.Groups, group)
	}

	if publicGroup != nil {
		igw, err := ec2.NewInternetGateway(ctx, prefix.ResourceID("igw"), &ec2.InternetGatewayArgs{
			VpcId: vpc.ID(),
			Tags:  nameTags(prefix.ResourceName("Igw")),
		}, opts...)
		if err != nil {
			return nil, err
		}
		network.InternetGateway = igw
	}

	if cfg.NatGateways > 0 {
		if publicGroup == nil {
			return nil, ErrNoPublicSubnet
		}
		count := cfg.NatGateways
		if count > len(zones) {
			count = len(zones)
		}
		for i := 0; i < count; i++ {
			eip, err := ec2.NewEip(ctx, fmt.Sprintf("%s-%d", prefix.ResourceID("nat-eip"), i+1), &ec2.EipArgs{
				Vpc:  pulumi.Bool(true),
				Tags: nameTags(fmt.Sprintf("%s%d", prefix.ResourceName("NatEip"), i+1)),
			}, opts...)
			if err != nil {
				return nil, err
			}
			nat, err := ec2.NewNatGateway(ctx, fmt.Sprintf("%s-%d", prefix.ResourceID("nat"), i+1), &ec2.NatGatewayArgs{
				AllocationId: eip.ID(),
				SubnetId:     publicGroup.Subnets[i].ID(),
				Tags:         nameTags(fmt.Sprintf("%s%d", prefix.ResourceName("Nat"), i+1)),
			}, append(opts, pulumi.DependsOn([]pulumi.Resource{network.InternetGateway}))...)
			if err != nil {
				return nil, err
			}
			network.NatGateways = append(network.NatGateways, nat)
		}
	} else if hasEgress {
		ctx.Log.Warn(fmt.Sprintf("%s: natGateways is 0, private-with-egress subnets have no outbound route", prefix.ResourceID(cfg.ID)), nil)
	}

	for _, group := range network.Groups {
		for i, subnet := range group.Subnets {
			rtName := fmt.Sprintf("%s-rt-%d", group.Name, i+1)
			routes := ec2.RouteTableRouteArray{}
			switch group.Type {
			case SubnetPublic:
				routes = append(routes, &ec2.RouteTableRouteArgs{
					CidrBlock: pulumi.String("0.0.0.0/0"),
					GatewayId: network.InternetGateway.ID(),
				})
			case SubnetPrivateWithEgress:
				if len(network.NatGateways) > 0 {
					routes = append(routes, &ec2.RouteTableRouteArgs{
						CidrBlock:    pulumi.String("0.0.0.0/0"),
						NatGatewayId: network.NatGateways[i%len(network.NatGateways)].ID(),
					})
				}
			}

			rt, err := ec2.NewRouteTable(ctx, rtName, &ec2.RouteTableArgs{
				VpcId:  vpc.ID(),
				Routes: routes,
				Tags:   nameTags(fmt.Sprintf("%s%sRt%d", prefix.Name, CamelCase(group.Name[len(prefix.ID):]), i+1)),
			}, opts...)
			if err != nil {
				return nil, err
			}
			group.RouteTables = append(group.RouteTables, rt)

			_, err = ec2.NewRouteTableAssociation(ctx, rtName+"-assoc", &ec2.RouteTableAssociationArgs{
				SubnetId:     subnet.ID(),
				RouteTableId: rt.ID(),
			}, opts...)
			if err != nil {
				return nil, err
			}
		}
	}

	return network, nil
}

// AllocateSubnets carves maxAZs blocks per spec out of vpcCIDR, keyed by spec
// id. Specs are placed largest block first, then by type and id, so the
// result does not depend on the order of specs.
func AllocateSubnets(vpcCIDR string, maxAZs int, specs []SubnetSpec) (map[string][]string, error) {
	_, base, err := net.ParseCIDR(vpcCIDR)
	if err != nil {
		return nil, fmt.Errorf("parse VPC CIDR %q: %w", vpcCIDR, err)
	}
	if maxAZs < 1 {
		return nil, fmt.Errorf("maxAZs must be at least 1, got %d", maxAZs)
	}
	baseOnes, bits := base.Mask.Size()

	ordered := make([]SubnetSpec, len(specs))
	copy(ordered, specs)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.CIDRMask != b.CIDRMask {
			return a.CIDRMask < b.CIDRMask
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.ID < b.ID
	})

	allocation := make(map[string][]string, len(specs))
	var prev *net.IPNet
	for _, spec := range ordered {
		if _, dup := allocation[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate subnet id %q", spec.ID)
		}
		if spec.CIDRMask < baseOnes || spec.CIDRMask > bits {
			return nil, fmt.Errorf("%w: /%d is outside %s", ErrSubnetSpaceExhausted, spec.CIDRMask, vpcCIDR)
		}

		blocks := make([]string, 0, maxAZs)
		for az := 0; az < maxAZs; az++ {
			var next *net.IPNet
			if prev == nil {
				next, err = cidr.Subnet(base, spec.CIDRMask-baseOnes, 0)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSubnetSpaceExhausted, err)
				}
			} else {
				var rollover bool
				next, rollover = cidr.NextSubnet(prev, spec.CIDRMask)
				if rollover || !base.Contains(next.IP) {
					return nil, fmt.Errorf("%w: %s cannot hold %d x /%d for %q", ErrSubnetSpaceExhausted, vpcCIDR, maxAZs, spec.CIDRMask, spec.ID)
				}
			}
			blocks = append(blocks, next.String())
			prev = next
		}
		allocation[spec.ID] = blocks
	}

	return allocation, nil
}

// VerifyNoOverlap fails when any two of the given VPC CIDR blocks overlap.
func VerifyNoOverlap(blocks []string) error {
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, b := range blocks {
		_, n, err := net.ParseCIDR(b)
		if err != nil {
			return fmt.Errorf("parse CIDR %q: %w", b, err)
		}
		nets = append(nets, n)
	}

	_, all, _ := net.ParseCIDR("0.0.0.0/0")
	if err := cidr.VerifyNoOverlap(nets, all); err != nil {
		return fmt.Errorf("%w: %v", ErrOverlappingCIDR, err)
	}
	return nil
}

func availabilityZones(ctx *pulumi.Context, cfg NetworkConfig) ([]string, error) {
	zones := cfg.AvailabilityZones
	if len(zones) == 0 {
		res, err := aws.GetAvailabilityZones(ctx, &aws.GetAvailabilityZonesArgs{
			State: pulumi.StringRef("available"),
		})
		if err != nil {
			return nil, fmt.Errorf("lookup availability zones: %w", err)
		}
		zones = res.Names
	}
	if cfg.MaxAZs > 0 && len(zones) > cfg.MaxAZs {
		zones = zones[:cfg.MaxAZs]
	}
	if len(zones) == 0 {
		return nil, errors.New("no availability zones available")
	}
	return zones, nil
}
