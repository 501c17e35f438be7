package services

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Interface endpoint services used by the subsystems.
const (
	EndpointSecretsManager = "secretsmanager"
	EndpointLambda         = "lambda"
	EndpointSSM            = "ssm"
	EndpointSSMMessages    = "ssmmessages"
	EndpointEC2Messages    = "ec2messages"
)

// Gateway endpoint services.
const (
	EndpointS3 = "s3"
)

// AddInterfaceEndpoint creates an interface VPC endpoint for an AWS service
// in the subnets of the given group. Private DNS is enabled so SDK clients in
// isolated subnets resolve the regional hostname to the endpoint.
func AddInterfaceEndpoint(ctx *pulumi.Context, prefix ServicePrefix, network *Network, id, service, subnetGroup string, opts ...pulumi.ResourceOption) (*ec2.VpcEndpoint, error) {
	subnetIDs, err := network.SubnetIDs(subnetGroup)
	if err != nil {
		return nil, err
	}

	region, err := aws.GetRegion(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup region: %w", err)
	}

	// Endpoint security group, HTTPS from inside the VPC only
	sg, err := ec2.NewSecurityGroup(ctx, prefix.ResourceID("sg-"+id), &ec2.SecurityGroupArgs{
		VpcId:       network.Vpc.ID(),
		Description: pulumi.String(fmt.Sprintf("Interface endpoint for %s", service)),
		Ingress: ec2.SecurityGroupIngressArray{
			&ec2.SecurityGroupIngressArgs{
				Protocol:   pulumi.String("tcp"),
				FromPort:   pulumi.Int(443),
				ToPort:     pulumi.Int(443),
				CidrBlocks: pulumi.StringArray{pulumi.String(network.CIDR)},
			},
		},
		Egress: allowAllEgress(),
		Tags:   nameTags(prefix.ResourceName("Sg" + CamelCase(id))),
	}, opts...)
	if err != nil {
		return nil, err
	}

	endpoint, err := ec2.NewVpcEndpoint(ctx, prefix.ResourceID(id), &ec2.VpcEndpointArgs{
		VpcId:             network.Vpc.ID(),
		ServiceName:       pulumi.String(fmt.Sprintf("com.amazonaws.%s.%s", region.Name, service)),
		VpcEndpointType:   pulumi.String("Interface"),
		SubnetIds:         subnetIDs,
		SecurityGroupIds:  pulumi.StringArray{sg.ID()},
		PrivateDnsEnabled: pulumi.Bool(true),
		Tags:              nameTags(prefix.ResourceName(CamelCase(id))),
	}, opts...)
	if err != nil {
		return nil, err
	}

	return endpoint, nil
}

// AddGatewayEndpoint creates a gateway VPC endpoint for an AWS service and
// associates it with the route table of every subnet in the given group.
func AddGatewayEndpoint(ctx *pulumi.Context, prefix ServicePrefix, network *Network, id, service, subnetGroup string, opts ...pulumi.ResourceOption) (*ec2.VpcEndpoint, error) {
	group, err := network.SubnetGroup(subnetGroup)
	if err != nil {
		return nil, err
	}

	region, err := aws.GetRegion(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup region: %w", err)
	}

	endpoint, err := ec2.NewVpcEndpoint(ctx, prefix.ResourceID(id), &ec2.VpcEndpointArgs{
		VpcId:           network.Vpc.ID(),
		ServiceName:     pulumi.String(fmt.Sprintf("com.amazonaws.%s.%s", region.Name, service)),
		VpcEndpointType: pulumi.String("Gateway"),
		Tags:            nameTags(prefix.ResourceName(CamelCase(id))),
	}, opts...)
	if err != nil {
		return nil, err
	}

	for i, rt := range group.RouteTables {
		_, err := ec2.NewVpcEndpointRouteTableAssociation(ctx, fmt.Sprintf("%s-rt-%d", prefix.ResourceID(id), i+1), &ec2.VpcEndpointRouteTableAssociationArgs{
			RouteTableId:  rt.ID(),
			VpcEndpointId: endpoint.ID(),
		}, opts...)
		if err != nil {
			return nil, err
		}
	}

	return endpoint, nil
}
