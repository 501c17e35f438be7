package services

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ssm"
	"github.com/pulumi/pulumi-tls/sdk/v4/go/tls"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Key types supported by NewKeyPair.
const (
	KeyTypeRSA     = "rsa"
	KeyTypeED25519 = "ed25519"
)

// KeyPairConfig describes an EC2 key pair generated by the program.
type KeyPairConfig struct {
	ID string
	// KeyName is a local display name prefixed with the service prefix name.
	// Empty uses the prefixed ID.
	KeyName string
	KeyType string
}

// KeyPair is an EC2 key pair whose private half is kept in SSM.
type KeyPair struct {
	KeyPair             *ec2.KeyPair
	KeyName             pulumi.StringOutput
	PrivateKeyParameter *ssm.Parameter
}

// NewKeyPair generates key material, registers the public key with EC2 and
// stores the private key as a SecureString parameter /ec2/keypair/<keyName>.
func NewKeyPair(ctx *pulumi.Context, prefix ServicePrefix, cfg KeyPairConfig, opts ...pulumi.ResourceOption) (*KeyPair, error) {
	id := prefix.ResourceID(cfg.ID)
	keyName := id
	if cfg.KeyName != "" {
		keyName = prefix.ResourceName(cfg.KeyName)
	}

	keyArgs := &tls.PrivateKeyArgs{}
	switch cfg.KeyType {
	case "", KeyTypeRSA:
		keyArgs.Algorithm = pulumi.String("RSA")
		keyArgs.RsaBits = pulumi.Int(4096)
	case KeyTypeED25519:
		keyArgs.Algorithm = pulumi.String("ED25519")
	default:
		return nil, fmt.Errorf("unsupported key type %q", cfg.KeyType)
	}

	key, err := tls.NewPrivateKey(ctx, id+"-material", keyArgs, opts...)
	if err != nil {
		return nil, err
	}

	keyPair, err := ec2.NewKeyPair(ctx, id, &ec2.KeyPairArgs{
		KeyName:   pulumi.String(keyName),
		PublicKey: key.PublicKeyOpenssh,
		Tags:      nameTags(prefix.ResourceName(CamelCase(cfg.ID))),
	}, opts...)
	if err != nil {
		return nil, err
	}

	param, err := ssm.NewParameter(ctx, id+"-private-key", &ssm.ParameterArgs{
		Name:        pulumi.String("/ec2/keypair/" + keyName),
		Type:        pulumi.String("SecureString"),
		Value:       key.PrivateKeyOpenssh,
		Description: pulumi.String(fmt.Sprintf("Private key of EC2 key pair %s", keyName)),
		Tags:        nameTags(prefix.ResourceName(CamelCase(cfg.ID) + "PrivateKey")),
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		KeyPair:             keyPair,
		KeyName:             keyPair.KeyName,
		PrivateKeyParameter: param,
	}, nil
}
