package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/rds"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/secretsmanager"
	"github.com/pulumi/pulumi-random/sdk/v4/go/random"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Credentials selects how the master credentials of a database are provided.
// It is either GeneratedCredentials or ExternalCredentials.
type Credentials interface {
	isCredentials()
}

// GeneratedCredentials generates a password for Username and stores the full
// connection description in a new Secrets Manager secret.
type GeneratedCredentials struct {
	Username string
}

// ExternalCredentials reuses an existing secret holding username and password.
type ExternalCredentials struct {
	SecretArn string
}

func (GeneratedCredentials) isCredentials() {}
func (ExternalCredentials) isCredentials()  {}

// DatabaseConfig describes a single-AZ managed MySQL instance.
type DatabaseConfig struct {
	Network     *Network
	SubnetGroup string

	ID                     string
	Name                   string
	EngineVersion          string
	InstanceClass          string
	InstanceSize           string
	AllocatedStorage       int
	DeletionProtection     bool
	DeleteAutomatedBackups bool
	SecurityGroups         []*SecurityGroup
	Credentials            Credentials
}

// DefaultDatabaseConfig returns the defaults used by every subsystem.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		SubnetGroup:            "private-subnet",
		ID:                     "rds-mysql",
		Name:                   "RdsMysql",
		EngineVersion:          "8.0.28",
		InstanceClass:          "m6i",
		InstanceSize:           "large",
		AllocatedStorage:       500,
		DeletionProtection:     false,
		DeleteAutomatedBackups: true,
		Credentials:            GeneratedCredentials{Username: "admin"},
	}
}

// Database exposes the instance and the ARN of the secret holding its
// credentials. The password itself never leaves the factory.
type Database struct {
	Instance    *rds.Instance
	SubnetGroup *rds.SubnetGroup
	SecretArn   pulumi.StringOutput
	Address     pulumi.StringOutput
	Port        pulumi.IntOutput
}

type databaseSecret struct {
	Engine               string `json:"engine"`
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	Username             string `json:"username"`
	Password             string `json:"password"`
	DBName               string `json:"dbname"`
	DBInstanceIdentifier string `json:"dbInstanceIdentifier"`
}

// NewMySQLInstance creates a MySQL instance in the selected subnet group.
// The instance is always single-AZ.
func NewMySQLInstance(ctx *pulumi.Context, prefix ServicePrefix, cfg DatabaseConfig, opts ...pulumi.ResourceOption) (*Database, error) {
	if cfg.Network == nil {
		return nil, errors.New("database requires a network")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("database requires credentials")
	}

	subnetIDs, err := cfg.Network.SubnetIDs(cfg.SubnetGroup)
	if err != nil {
		return nil, err
	}

	id := prefix.ResourceID(cfg.ID)
	name := prefix.ResourceName(nameOrDerived(cfg.Name, cfg.ID))

	// Create subnet group for the instance
	subnetGroup, err := rds.NewSubnetGroup(ctx, id+"-subnets", &rds.SubnetGroupArgs{
		SubnetIds: subnetIDs,
		Tags:      nameTags(name + "Subnets"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	var (
		username  pulumi.StringInput
		password  pulumi.StringOutput
		secretArn pulumi.StringOutput
		generated *GeneratedCredentials
	)
	switch c := cfg.Credentials.(type) {
	case GeneratedCredentials:
		if c.Username == "" {
			return nil, errors.New("generated credentials require a username")
		}
		pw, err := random.NewRandomPassword(ctx, id+"-password", &random.RandomPasswordArgs{
			Length:          pulumi.Int(30),
			Special:         pulumi.Bool(true),
			OverrideSpecial: pulumi.String("!#$%&*()-_=+[]{}<>:?"),
		}, opts...)
		if err != nil {
			return nil, err
		}
		username = pulumi.String(c.Username)
		password = pw.Result
		generated = &c
	case ExternalCredentials:
		existing, err := secretsmanager.LookupSecretVersion(ctx, &secretsmanager.LookupSecretVersionArgs{
			SecretId: c.SecretArn,
		})
		if err != nil {
			return nil, fmt.Errorf("lookup secret %s: %w", c.SecretArn, err)
		}
		var creds databaseSecret
		if err := json.Unmarshal([]byte(existing.SecretString), &creds); err != nil {
			return nil, fmt.Errorf("parse secret %s: %w", c.SecretArn, err)
		}
		if creds.Username == "" || creds.Password == "" {
			return nil, fmt.Errorf("secret %s has no username or password", c.SecretArn)
		}
		username = pulumi.String(creds.Username)
		password = pulumi.ToSecret(pulumi.String(creds.Password)).(pulumi.StringOutput)
		secretArn = pulumi.String(c.SecretArn).ToStringOutput()
	default:
		return nil, fmt.Errorf("unsupported credentials %T", cfg.Credentials)
	}

	// Create the MySQL instance
	instance, err := rds.NewInstance(ctx, id, &rds.InstanceArgs{
		Identifier:             pulumi.String(id),
		Engine:                 pulumi.String("mysql"),
		EngineVersion:          pulumi.String(cfg.EngineVersion),
		InstanceClass:          pulumi.String(fmt.Sprintf("db.%s.%s", cfg.InstanceClass, cfg.InstanceSize)),
		AllocatedStorage:       pulumi.Int(cfg.AllocatedStorage),
		DbName:                 pulumi.String(name),
		Username:               username,
		Password:               password,
		DbSubnetGroupName:      subnetGroup.Name,
		VpcSecurityGroupIds:    securityGroupIDs(cfg.SecurityGroups),
		MultiAz:                pulumi.Bool(false),
		PubliclyAccessible:     pulumi.Bool(false),
		StorageEncrypted:       pulumi.Bool(true),
		DeletionProtection:     pulumi.Bool(cfg.DeletionProtection),
		DeleteAutomatedBackups: pulumi.Bool(cfg.DeleteAutomatedBackups),
		SkipFinalSnapshot:      pulumi.Bool(!cfg.DeletionProtection),
		Tags:                   nameTags(name),
	}, opts...)
	if err != nil {
		return nil, err
	}

	if generated != nil {
		// Store the generated credentials next to the connection details
		secret, err := secretsmanager.NewSecret(ctx, id+"-credentials", &secretsmanager.SecretArgs{
			Description: pulumi.String(fmt.Sprintf("Master credentials of %s", name)),
			Tags:        nameTags(name + "Credentials"),
		}, opts...)
		if err != nil {
			return nil, err
		}

		user := generated.Username
		secretString := pulumi.All(instance.Address, instance.Port, password).ApplyT(func(args []interface{}) (string, error) {
			b, err := json.Marshal(databaseSecret{
				Engine:               "mysql",
				Host:                 args[0].(string),
				Port:                 args[1].(int),
				Username:             user,
				Password:             args[2].(string),
				DBName:               name,
				DBInstanceIdentifier: id,
			})
			if err != nil {
				return "", err
			}
			return string(b), nil
		}).(pulumi.StringOutput)

		_, err = secretsmanager.NewSecretVersion(ctx, id+"-credentials-version", &secretsmanager.SecretVersionArgs{
			SecretId:     secret.ID(),
			SecretString: secretString,
		}, opts...)
		if err != nil {
			return nil, err
		}
		secretArn = secret.Arn
	}

	return &Database{
		Instance:    instance,
		SubnetGroup: subnetGroup,
		SecretArn:   secretArn,
		Address:     instance.Address,
		Port:        instance.Port,
	}, nil
}
