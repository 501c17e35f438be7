package dbsecret

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = `{
	"engine": "mysql",
	"host": "ee-rds-mysql.example.eu-west-1.rds.amazonaws.com",
	"port": 3306,
	"username": "admin",
	"password": "p@ss:w/rd",
	"dbname": "EeRdsMysql",
	"dbInstanceIdentifier": "ee-rds-mysql"
}`

type fakeSecrets struct {
	value *string
	err   error
	ids   []string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.ids = append(f.ids, aws.ToString(in.SecretId))
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestParse(t *testing.T) {
	creds, err := Parse(validSecret)
	require.NoError(t, err)
	assert.Equal(t, Credentials{
		Host:     "ee-rds-mysql.example.eu-west-1.rds.amazonaws.com",
		Port:     3306,
		Username: "admin",
		Password: "p@ss:w/rd",
		DBName:   "EeRdsMysql",
	}, creds)
}

func TestParseRejectsMalformedPayloads(t *testing.T) {
	for name, secret := range map[string]string{
		"not json":       `host=db;port=3306`,
		"python literal": `{'host': 'db', 'port': 3306}`,
		"missing host":   `{"port": 3306, "username": "admin", "password": "x", "dbname": "db"}`,
		"missing port":   `{"host": "db", "username": "admin", "password": "x", "dbname": "db"}`,
		"port as string": `{"host": "db", "port": "3306", "username": "admin", "password": "x", "dbname": "db"}`,
		"port fraction":  `{"host": "db", "port": 3306.5, "username": "admin", "password": "x", "dbname": "db"}`,
		"port range":     `{"host": "db", "port": 70000, "username": "admin", "password": "x", "dbname": "db"}`,
		"missing dbname": `{"host": "db", "port": 3306, "username": "admin", "password": "x"}`,
		"null password":  `{"host": "db", "port": 3306, "username": "admin", "password": null, "dbname": "db"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(secret)
			assert.ErrorIs(t, err, ErrMalformedCredentials)
		})
	}
}

func TestDSN(t *testing.T) {
	creds, err := Parse(validSecret)
	require.NoError(t, err)

	dsn := creds.DSN()
	assert.True(t, strings.HasPrefix(dsn, "admin:p@ss:w/rd@tcp(ee-rds-mysql.example.eu-west-1.rds.amazonaws.com:3306)/EeRdsMysql"), dsn)
	assert.Contains(t, dsn, "timeout=10s")
}

func TestResolve(t *testing.T) {
	secrets := &fakeSecrets{value: aws.String(validSecret)}
	creds, err := NewResolver(secrets).Resolve(context.Background(), "arn:secret")
	require.NoError(t, err)
	assert.Equal(t, "admin", creds.Username)
	assert.Equal(t, []string{"arn:secret"}, secrets.ids)
}

func TestResolveFailures(t *testing.T) {
	ctx := context.Background()

	secrets := &fakeSecrets{value: aws.String(validSecret)}
	_, err := NewResolver(secrets).Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrSecretLookup)
	assert.Empty(t, secrets.ids)

	_, err = NewResolver(&fakeSecrets{err: errors.New("AccessDeniedException")}).Resolve(ctx, "arn:secret")
	assert.ErrorIs(t, err, ErrSecretLookup)

	_, err = NewResolver(&fakeSecrets{}).Resolve(ctx, "arn:secret")
	assert.ErrorIs(t, err, ErrMalformedCredentials)

	_, err = NewResolver(&fakeSecrets{value: aws.String(`{"host":"db"}`)}).Resolve(ctx, "arn:secret")
	assert.ErrorIs(t, err, ErrMalformedCredentials)
}
