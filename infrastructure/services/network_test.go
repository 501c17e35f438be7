package services

import (
	"sort"
	"testing"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-d/futura-city/infrastructure/internal/pulumitest"
)

var testPrefix = ServicePrefix{ID: "ee-", Name: "Ee"}

func isolatedSpecs() []SubnetSpec {
	return []SubnetSpec{{Type: SubnetPrivateIsolated, ID: "private-subnet", CIDRMask: 28}}
}

func newTestNetwork(ctx *pulumi.Context, specs []SubnetSpec) (*Network, error) {
	return NewNetwork(ctx, testPrefix, DefaultNetworkConfig(), specs)
}

func TestAllocateSubnets(t *testing.T) {
	got, err := AllocateSubnets("10.0.0.0/24", 2, isolatedSpecs())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/28", "10.0.0.16/28"}, got["private-subnet"])
}

func TestAllocateSubnetsIsOrderIndependent(t *testing.T) {
	public := SubnetSpec{Type: SubnetPublic, ID: "public-subnet", CIDRMask: 28}
	private := SubnetSpec{Type: SubnetPrivateIsolated, ID: "private-subnet", CIDRMask: 26}
	egress := SubnetSpec{Type: SubnetPrivateWithEgress, ID: "egress-subnet", CIDRMask: 28}

	a, err := AllocateSubnets("10.0.0.0/24", 2, []SubnetSpec{public, private, egress})
	require.NoError(t, err)
	b, err := AllocateSubnets("10.0.0.0/24", 2, []SubnetSpec{egress, private, public})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, []string{"10.0.0.0/26", "10.0.0.64/26"}, a["private-subnet"])

	var all []string
	for _, blocks := range a {
		all = append(all, blocks...)
	}
	sort.Strings(all)
	require.NoError(t, VerifyNoOverlap(all))
}

func TestAllocateSubnetsExhausted(t *testing.T) {
	_, err := AllocateSubnets("10.0.0.0/24", 2, []SubnetSpec{
		{Type: SubnetPublic, ID: "public-subnet", CIDRMask: 25},
		{Type: SubnetPrivateIsolated, ID: "private-subnet", CIDRMask: 25},
	})
	assert.ErrorIs(t, err, ErrSubnetSpaceExhausted)

	_, err = AllocateSubnets("10.0.0.0/24", 2, []SubnetSpec{
		{Type: SubnetPrivateIsolated, ID: "private-subnet", CIDRMask: 23},
	})
	assert.ErrorIs(t, err, ErrSubnetSpaceExhausted)
}

func TestAllocateSubnetsRejectsDuplicateIDs(t *testing.T) {
	_, err := AllocateSubnets("10.0.0.0/24", 2, []SubnetSpec{
		{Type: SubnetPublic, ID: "subnet", CIDRMask: 28},
		{Type: SubnetPrivateIsolated, ID: "subnet", CIDRMask: 28},
	})
	assert.Error(t, err)
}

func TestVerifyNoOverlap(t *testing.T) {
	assert.NoError(t, VerifyNoOverlap([]string{"10.0.0.0/24", "10.1.0.0/24", "10.2.0.0/24"}))
	assert.ErrorIs(t, VerifyNoOverlap([]string{"10.0.0.0/16", "10.0.1.0/24"}), ErrOverlappingCIDR)
	assert.Error(t, VerifyNoOverlap([]string{"not-a-cidr"}))
}

func TestNewNetworkReplicatesGroupsAcrossZones(t *testing.T) {
	mocks := pulumitest.NewMocks()
	var network *Network
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		var err error
		network, err = newTestNetwork(ctx, []SubnetSpec{
			{Type: SubnetPublic, ID: "public-subnet", CIDRMask: 28},
			{Type: SubnetPrivateIsolated, ID: "private-subnet", CIDRMask: 28},
		})
		return err
	}, mocks)
	require.NoError(t, err)

	require.Len(t, network.Groups, 2)
	assert.Equal(t, "ee-public-subnet", network.Groups[0].Name)
	assert.Equal(t, "ee-private-subnet", network.Groups[1].Name)
	assert.Equal(t, []string{"eu-west-1a", "eu-west-1b"}, network.AvailabilityZones)

	vpcs := mocks.ByType("aws:ec2/vpc:Vpc")
	require.Len(t, vpcs, 1)
	assert.Equal(t, "ee-vpc", vpcs[0].Name)
	assert.Equal(t, "10.0.0.0/24", vpcs[0].String("cidrBlock"))

	subnets := mocks.ByType("aws:ec2/subnet:Subnet")
	require.Len(t, subnets, 4)
	zones := map[string]int{}
	for _, s := range subnets {
		zones[s.String("availabilityZone")]++
	}
	assert.Equal(t, map[string]int{"eu-west-1a": 2, "eu-west-1b": 2}, zones)

	public, ok := mocks.Named("ee-public-subnet-1")
	require.True(t, ok)
	mapPublic, _ := public.Bool("mapPublicIpOnLaunch")
	assert.True(t, mapPublic)

	assert.Len(t, mocks.ByType("aws:ec2/internetGateway:InternetGateway"), 1)
	assert.Empty(t, mocks.ByType("aws:ec2/natGateway:NatGateway"))
	assert.Len(t, mocks.ByType("aws:ec2/routeTable:RouteTable"), 4)
	assert.Len(t, mocks.ByType("aws:ec2/routeTableAssociation:RouteTableAssociation"), 4)
}

func TestNewNetworkPlacesNatGatewaysInPublicGroup(t *testing.T) {
	mocks := pulumitest.NewMocks()
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		cfg := DefaultNetworkConfig()
		cfg.NatGateways = 5
		_, err := NewNetwork(ctx, testPrefix, cfg, []SubnetSpec{
			{Type: SubnetPublic, ID: "public-subnet", CIDRMask: 28},
			{Type: SubnetPrivateWithEgress, ID: "app-subnet", CIDRMask: 28},
		})
		return err
	}, mocks)
	require.NoError(t, err)

	// capped at one gateway per zone
	assert.Len(t, mocks.ByType("aws:ec2/natGateway:NatGateway"), 2)
	assert.Len(t, mocks.ByType("aws:ec2/eip:Eip"), 2)
}

func TestNewNetworkNatWithoutPublicGroup(t *testing.T) {
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		cfg := DefaultNetworkConfig()
		cfg.NatGateways = 1
		_, err := NewNetwork(ctx, testPrefix, cfg, []SubnetSpec{
			{Type: SubnetPrivateWithEgress, ID: "app-subnet", CIDRMask: 28},
		})
		return err
	}, pulumitest.NewMocks())
	assert.ErrorIs(t, err, ErrNoPublicSubnet)
}

func TestNewNetworkEgressWithoutNatKeepsConfiguration(t *testing.T) {
	mocks := pulumitest.NewMocks()
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		_, err := newTestNetwork(ctx, []SubnetSpec{
			{Type: SubnetPrivateWithEgress, ID: "app-subnet", CIDRMask: 28},
		})
		return err
	}, mocks)
	require.NoError(t, err)

	assert.Empty(t, mocks.ByType("aws:ec2/natGateway:NatGateway"))
	for _, rt := range mocks.ByType("aws:ec2/routeTable:RouteTable") {
		routes := rt.Inputs["routes"]
		assert.True(t, !routes.IsArray() || len(routes.ArrayValue()) == 0, rt.Name)
	}
}

func TestNetworkSubnetGroupLookup(t *testing.T) {
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		network, err := newTestNetwork(ctx, isolatedSpecs())
		if err != nil {
			return err
		}
		if _, err := network.SubnetIDs("private-subnet"); err != nil {
			return err
		}
		_, err = network.SubnetGroup("public-subnet")
		return err
	}, pulumitest.NewMocks())
	assert.ErrorIs(t, err, ErrUnknownSubnetGroup)
}

func TestNewNetworkPinnedZones(t *testing.T) {
	mocks := pulumitest.NewMocks()
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		cfg := DefaultNetworkConfig()
		cfg.AvailabilityZones = []string{"eu-west-1c"}
		_, err := NewNetwork(ctx, testPrefix, cfg, isolatedSpecs())
		return err
	}, mocks)
	require.NoError(t, err)

	subnets := mocks.ByType("aws:ec2/subnet:Subnet")
	require.Len(t, subnets, 1)
	assert.Equal(t, "eu-west-1c", subnets[0].String("availabilityZone"))
}

func TestAddInterfaceEndpoint(t *testing.T) {
	mocks := pulumitest.NewMocks()
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		network, err := newTestNetwork(ctx, isolatedSpecs())
		if err != nil {
			return err
		}
		_, err = AddInterfaceEndpoint(ctx, testPrefix, network, "secrets-manager-endpoint", EndpointSecretsManager, "private-subnet")
		return err
	}, mocks)
	require.NoError(t, err)

	ep, ok := mocks.Named("ee-secrets-manager-endpoint")
	require.True(t, ok)
	assert.Equal(t, "com.amazonaws.eu-west-1.secretsmanager", ep.String("serviceName"))
	assert.Equal(t, "Interface", ep.String("vpcEndpointType"))
	dns, _ := ep.Bool("privateDnsEnabled")
	assert.True(t, dns)

	_, ok = mocks.Named("ee-sg-secrets-manager-endpoint")
	assert.True(t, ok)
}

func TestAddGatewayEndpoint(t *testing.T) {
	mocks := pulumitest.NewMocks()
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		network, err := newTestNetwork(ctx, isolatedSpecs())
		if err != nil {
			return err
		}
		_, err = AddGatewayEndpoint(ctx, testPrefix, network, "s3-endpoint", EndpointS3, "private-subnet")
		return err
	}, mocks)
	require.NoError(t, err)

	ep, ok := mocks.Named("ee-s3-endpoint")
	require.True(t, ok)
	assert.Equal(t, "com.amazonaws.eu-west-1.s3", ep.String("serviceName"))
	assert.Equal(t, "Gateway", ep.String("vpcEndpointType"))

	associations := mocks.ByType("aws:ec2/vpcEndpointRouteTableAssociation:VpcEndpointRouteTableAssociation")
	require.Len(t, associations, 2)
	tables := map[string]bool{}
	for _, a := range associations {
		assert.Equal(t, "ee-s3-endpoint-id", a.String("vpcEndpointId"))
		tables[a.String("routeTableId")] = true
	}
	assert.Equal(t, map[string]bool{"ee-private-subnet-rt-1-id": true, "ee-private-subnet-rt-2-id": true}, tables)
}

func TestAddGatewayEndpointUnknownGroup(t *testing.T) {
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		network, err := newTestNetwork(ctx, isolatedSpecs())
		if err != nil {
			return err
		}
		_, err = AddGatewayEndpoint(ctx, testPrefix, network, "s3-endpoint", EndpointS3, "public-subnet")
		return err
	}, pulumitest.NewMocks())
	assert.ErrorIs(t, err, ErrUnknownSubnetGroup)
}
