package services

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// RemovalPolicy decides what happens to a bucket when it leaves the program.
type RemovalPolicy string

const (
	RemovalPolicyRetain  RemovalPolicy = "retain"
	RemovalPolicyDestroy RemovalPolicy = "destroy"
)

// BucketConfig describes an S3 bucket.
type BucketConfig struct {
	ID                string
	RemovalPolicy     RemovalPolicy
	BlockPublicAccess bool
	AutoDeleteObjects bool
}

// Bucket is an S3 bucket and its public access block, if any.
type Bucket struct {
	Bucket      *s3.Bucket
	AccessBlock *s3.BucketPublicAccessBlock
	// ObjectsArn matches every object of the bucket.
	ObjectsArn pulumi.StringOutput
}

// NewBucket creates a private, encrypted S3 bucket named after prefix.ID + cfg.ID.
func NewBucket(ctx *pulumi.Context, prefix ServicePrefix, cfg BucketConfig, opts ...pulumi.ResourceOption) (*Bucket, error) {
	id := prefix.ResourceID(cfg.ID)

	bucketOpts := opts
	switch cfg.RemovalPolicy {
	case RemovalPolicyRetain:
		bucketOpts = append(append([]pulumi.ResourceOption{}, opts...), pulumi.RetainOnDelete(true))
	case RemovalPolicyDestroy, "":
	default:
		return nil, fmt.Errorf("unknown removal policy %q", cfg.RemovalPolicy)
	}

	// Create bucket, the physical name gets a random suffix
	bucket, err := s3.NewBucket(ctx, id, &s3.BucketArgs{
		BucketPrefix: pulumi.String(id + "-"),
		Acl:          pulumi.String("private"),
		ForceDestroy: pulumi.Bool(cfg.AutoDeleteObjects),
		// Configure server-side encryption
		ServerSideEncryptionConfiguration: &s3.BucketServerSideEncryptionConfigurationArgs{
			Rule: &s3.BucketServerSideEncryptionConfigurationRuleArgs{
				ApplyServerSideEncryptionByDefault: &s3.BucketServerSideEncryptionConfigurationRuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String("AES256"),
				},
			},
		},
		Tags: nameTags(prefix.ResourceName(CamelCase(cfg.ID))),
	}, bucketOpts...)
	if err != nil {
		return nil, err
	}

	result := &Bucket{
		Bucket:     bucket,
		ObjectsArn: pulumi.Sprintf("%s/*", bucket.Arn),
	}

	if cfg.BlockPublicAccess {
		block, err := s3.NewBucketPublicAccessBlock(ctx, id+"-public-access", &s3.BucketPublicAccessBlockArgs{
			Bucket:                bucket.ID(),
			BlockPublicAcls:       pulumi.Bool(true),
			BlockPublicPolicy:     pulumi.Bool(true),
			IgnorePublicAcls:      pulumi.Bool(true),
			RestrictPublicBuckets: pulumi.Bool(true),
		}, opts...)
		if err != nil {
			return nil, err
		}
		result.AccessBlock = block
	}

	return result, nil
}
