package stacks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-d/futura-city/infrastructure/internal/pulumitest"
	"github.com/dj-d/futura-city/infrastructure/services"
)

var testPrefix = services.ServicePrefix{ID: "ee-", Name: "Ee"}

// buildDir lays out bootstrap artifacts the way the Makefile does.
func buildDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"init", "read", "write"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name, "bootstrap"), []byte("binary"), 0o755))
	}
	return dir
}

func testFunction(ctx *pulumi.Context, dir, id string) (*services.Function, error) {
	cfg := services.DefaultFunctionConfig()
	cfg.ID = id
	cfg.SourcePath = filepath.Join(dir, "read")
	return services.NewFunction(ctx, testPrefix, cfg)
}

func TestValidateModels(t *testing.T) {
	fn := &services.Function{}

	assert.NoError(t, ValidateModels([]string{"GET", "POST"}, []APIModel{
		{Method: "GET", Function: fn},
		{Method: "post", Function: fn},
	}))
	assert.NoError(t, ValidateModels([]string{"GET", "POST"}, nil))

	for name, tc := range map[string]struct {
		allowed []string
		models  []APIModel
	}{
		"not allowed": {[]string{"GET"}, []APIModel{{Method: "POST", Function: fn}}},
		"duplicate":   {[]string{"GET"}, []APIModel{{Method: "GET", Function: fn}, {Method: "get", Function: fn}}},
		"not a verb":  {[]string{"GET"}, []APIModel{{Method: "FETCH", Function: fn}}},
		"bad allowed": {[]string{"FETCH"}, nil},
		"options":     {[]string{"GET"}, []APIModel{{Method: "OPTIONS", Function: fn}}},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateModels(tc.allowed, tc.models), ErrMethodNotAllowed)
		})
	}

	assert.Error(t, ValidateModels([]string{"GET"}, []APIModel{{Method: "GET"}}))
}

func TestNewAPIGateway(t *testing.T) {
	dir := buildDir(t)
	mocks := pulumitest.NewMocks()
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		read, err := testFunction(ctx, dir, "lambda-read")
		if err != nil {
			return err
		}
		write, err := testFunction(ctx, dir, "lambda-write")
		if err != nil {
			return err
		}
		_, err = NewAPIGateway(ctx, "ee-api", &APIGatewayArgs{
			Prefix:         testPrefix,
			Description:    "test",
			Endpoint:       "energy-efficiency",
			AllowedMethods: []string{"GET", "POST"},
			Models: []APIModel{
				{Method: "GET", Function: read},
				{Method: "POST", Function: write},
			},
		})
		return err
	}, mocks)
	require.NoError(t, err)

	components := mocks.ByType(apiGatewayType)
	require.Len(t, components, 1)
	assert.False(t, components[0].Custom)

	res, ok := mocks.Named("ee-api-gateway-energy-efficiency")
	require.True(t, ok)
	assert.Equal(t, "energy-efficiency", res.String("pathPart"))
	assert.Equal(t, "ee-api-gateway-root", res.String("parentId"))

	methods := map[string]bool{}
	for _, m := range mocks.ByType("aws:apigateway/method:Method") {
		methods[m.String("httpMethod")] = true
		assert.Equal(t, "NONE", m.String("authorization"))
	}
	assert.Equal(t, map[string]bool{"GET": true, "POST": true, "OPTIONS": true}, methods)

	get, ok := mocks.Named("ee-api-gateway-get-integration")
	require.True(t, ok)
	assert.Equal(t, "AWS", get.String("type"))
	assert.Equal(t, "POST", get.String("integrationHttpMethod"))
	assert.Contains(t, get.String("uri"), "ee-lambda-read")

	options, ok := mocks.Named("ee-api-gateway-options-integration")
	require.True(t, ok)
	assert.Equal(t, "MOCK", options.String("type"))

	resp, ok := mocks.Named("ee-api-gateway-post-integration-response-200")
	require.True(t, ok)
	params := resp.Inputs["responseParameters"].ObjectValue()
	assert.Equal(t, "'*'", params[corsOriginKey].StringValue())

	preflight, ok := mocks.Named("ee-api-gateway-options-integration-response-200")
	require.True(t, ok)
	assert.Equal(t, "'OPTIONS,GET,POST'", preflight.Inputs["responseParameters"].ObjectValue()[corsMethodsKey].StringValue())

	permissions := mocks.ByType("aws:lambda/permission:Permission")
	require.Len(t, permissions, 2)
	for _, p := range permissions {
		assert.Equal(t, "apigateway.amazonaws.com", p.String("principal"))
	}
	perm, ok := mocks.Named("ee-api-gateway-get-permission")
	require.True(t, ok)
	assert.Equal(t, "arn:aws:execute-api:eu-west-1:123456789012:ee-api-gateway-id/*/GET/energy-efficiency", perm.String("sourceArn"))

	deployments := mocks.ByType("aws:apigateway/deployment:Deployment")
	require.Len(t, deployments, 1)
	triggers := deployments[0].Inputs["triggers"].ObjectValue()
	assert.Equal(t, "energy-efficiency", triggers["endpoint"].StringValue())
	assert.Equal(t, "GET,POST", triggers["allowedMethods"].StringValue())
	assert.Equal(t, "GET,POST", triggers["methods"].StringValue())
	assert.Contains(t, triggers["integration-GET"].StringValue(), "ee-lambda-read")
	assert.Contains(t, triggers["integration-POST"].StringValue(), "ee-lambda-write")
	stage, ok := mocks.Named("ee-api-gateway-prod")
	require.True(t, ok)
	assert.Equal(t, "prod", stage.String("stageName"))
}

func TestNewAPIGatewayRejectsUndeclaredMethod(t *testing.T) {
	dir := buildDir(t)
	mocks := pulumitest.NewMocks()
	err := pulumitest.Run(func(ctx *pulumi.Context) error {
		write, err := testFunction(ctx, dir, "lambda-write")
		if err != nil {
			return err
		}
		_, err = NewAPIGateway(ctx, "ee-api", &APIGatewayArgs{
			Prefix:         testPrefix,
			Endpoint:       "energy-efficiency",
			AllowedMethods: []string{"GET"},
			Models:         []APIModel{{Method: "POST", Function: write}},
		})
		return err
	}, mocks)
	assert.ErrorIs(t, err, ErrMethodNotAllowed)
	assert.Empty(t, mocks.ByType("aws:apigateway/restApi:RestApi"))
}
