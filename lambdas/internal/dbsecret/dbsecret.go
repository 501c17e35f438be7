// Package dbsecret resolves the database credentials a handler connects with.
package dbsecret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/go-sql-driver/mysql"
)

var (
	// ErrSecretLookup is returned when the secret store cannot be read.
	ErrSecretLookup = errors.New("secret lookup failed")
	// ErrMalformedCredentials is returned when the secret payload misses a field or has a wrong type.
	ErrMalformedCredentials = errors.New("malformed database credentials")
)

// Credentials are the connection parameters stored in the database secret.
type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
	DBName   string
}

type payload struct {
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	DBName   *string `json:"dbname"`
}

// Parse decodes a secret string. Extra fields such as engine are ignored.
func Parse(secret string) (Credentials, error) {
	var p payload
	if err := json.Unmarshal([]byte(secret), &p); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrMalformedCredentials, err)
	}

	missing := func(field string) error {
		return fmt.Errorf("%w: missing %s", ErrMalformedCredentials, field)
	}
	switch {
	case p.Host == nil || *p.Host == "":
		return Credentials{}, missing("host")
	case p.Port == nil:
		return Credentials{}, missing("port")
	case p.Username == nil || *p.Username == "":
		return Credentials{}, missing("username")
	case p.Password == nil:
		return Credentials{}, missing("password")
	case p.DBName == nil || *p.DBName == "":
		return Credentials{}, missing("dbname")
	}
	if *p.Port <= 0 || *p.Port > 65535 {
		return Credentials{}, fmt.Errorf("%w: port %d out of range", ErrMalformedCredentials, *p.Port)
	}

	return Credentials{
		Host:     *p.Host,
		Port:     *p.Port,
		Username: *p.Username,
		Password: *p.Password,
		DBName:   *p.DBName,
	}, nil
}

// DSN renders the credentials as a go-sql-driver/mysql data source name.
func (c Credentials) DSN() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.DBName = c.DBName
	cfg.Timeout = 10 * time.Second
	cfg.ReadTimeout = 30 * time.Second
	cfg.WriteTimeout = 30 * time.Second
	return cfg.FormatDSN()
}

// SecretsAPI is the part of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver reads and parses database secrets.
type Resolver struct {
	Client SecretsAPI
}

// NewResolver wraps a Secrets Manager client.
func NewResolver(client SecretsAPI) *Resolver {
	return &Resolver{Client: client}
}

// Resolve fetches the secret identified by ref and parses it.
func (r *Resolver) Resolve(ctx context.Context, ref string) (Credentials, error) {
	if ref == "" {
		return Credentials{}, fmt.Errorf("%w: no secret reference configured", ErrSecretLookup)
	}

	out, err := r.Client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrSecretLookup, err)
	}
	if out.SecretString == nil {
		return Credentials{}, fmt.Errorf("%w: secret %s has no string value", ErrMalformedCredentials, ref)
	}

	return Parse(aws.ToString(out.SecretString))
}
