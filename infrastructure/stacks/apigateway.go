package stacks

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/apigateway"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/dj-d/futura-city/infrastructure/services"
)

const (
	apiGatewayType = "futura-city:stacks:ApiGateway"
	apiStageName   = "prod"
	corsOrigin     = "'*'"
	corsOriginKey  = "method.response.header.Access-Control-Allow-Origin"
	corsMethodsKey = "method.response.header.Access-Control-Allow-Methods"
	corsHeadersKey = "method.response.header.Access-Control-Allow-Headers"
)

var ErrMethodNotAllowed = errors.New("method not allowed")

var httpVerbs = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
	"HEAD":   true,
}

// APIModel binds an HTTP method of the façade to a function.
type APIModel struct {
	Method   string
	Function *services.Function
}

// APIGatewayArgs configures NewAPIGateway.
type APIGatewayArgs struct {
	Prefix      services.ServicePrefix
	Description string
	// Endpoint is the single path part under the API root.
	Endpoint       string
	AllowedMethods []string
	Models         []APIModel
}

// APIGateway is a REST API exposing one resource whose methods invoke functions.
type APIGateway struct {
	pulumi.ResourceState

	RestApi  *apigateway.RestApi
	Resource *apigateway.Resource
	Stage    *apigateway.Stage
	// URL is the invoke URL of the endpoint resource.
	URL pulumi.StringOutput
	// ExecuteArn matches every method of every stage, for IAM policies.
	ExecuteArn pulumi.StringOutput
}

// ValidateModels checks that every model uses a distinct HTTP verb from allowed.
func ValidateModels(allowed []string, models []APIModel) error {
	allowedSet := map[string]bool{}
	for _, m := range allowed {
		verb := strings.ToUpper(m)
		if !httpVerbs[verb] {
			return fmt.Errorf("%w: %q is not an HTTP verb", ErrMethodNotAllowed, m)
		}
		allowedSet[verb] = true
	}

	seen := map[string]bool{}
	for _, model := range models {
		verb := strings.ToUpper(model.Method)
		if !httpVerbs[verb] {
			return fmt.Errorf("%w: %q is not an HTTP verb", ErrMethodNotAllowed, model.Method)
		}
		if !allowedSet[verb] {
			return fmt.Errorf("%w: %s is not in %v", ErrMethodNotAllowed, verb, allowed)
		}
		if seen[verb] {
			return fmt.Errorf("%w: %s is bound twice", ErrMethodNotAllowed, verb)
		}
		if model.Function == nil {
			return fmt.Errorf("%s has no function", verb)
		}
		seen[verb] = true
	}
	return nil
}

// NewAPIGateway creates the REST façade of a subsystem and deploys it to the
// prod stage.
func NewAPIGateway(ctx *pulumi.Context, name string, args *APIGatewayArgs, opts ...pulumi.ResourceOption) (*APIGateway, error) {
	if args == nil || args.Endpoint == "" {
		return nil, errors.New("api gateway requires an endpoint")
	}
	if err := ValidateModels(args.AllowedMethods, args.Models); err != nil {
		return nil, err
	}

	component := &APIGateway{}
	if err := ctx.RegisterComponentResource(apiGatewayType, name, component, opts...); err != nil {
		return nil, err
	}
	parent := pulumi.Parent(component)
	prefix := args.Prefix
	id := prefix.ResourceID("api-gateway")

	// Create REST API
	api, err := apigateway.NewRestApi(ctx, id, &apigateway.RestApiArgs{
		Name:        pulumi.String(prefix.ResourceName("ApiGateway")),
		Description: pulumi.String(args.Description),
		Tags:        pulumi.StringMap{"Name": pulumi.String(prefix.ResourceName("ApiGateway"))},
	}, parent)
	if err != nil {
		return nil, err
	}

	resource, err := apigateway.NewResource(ctx, id+"-"+args.Endpoint, &apigateway.ResourceArgs{
		RestApi:  api.ID(),
		ParentId: api.RootResourceId,
		PathPart: pulumi.String(args.Endpoint),
	}, parent)
	if err != nil {
		return nil, err
	}

	deps, err := addCORSPreflight(ctx, id, api, resource, args.AllowedMethods, parent)
	if err != nil {
		return nil, err
	}

	// Any change to the route, the declared methods or an integration target
	// redeploys the stage.
	triggers := pulumi.StringMap{
		"endpoint":       pulumi.String(args.Endpoint),
		"allowedMethods": pulumi.String(strings.Join(upperSorted(args.AllowedMethods), ",")),
		"methods":        pulumi.String(strings.Join(sortedVerbs(args.Models), ",")),
	}

	for _, model := range args.Models {
		verb := strings.ToUpper(model.Method)
		base := fmt.Sprintf("%s-%s", id, strings.ToLower(verb))
		triggers["integration-"+verb] = model.Function.Function.InvokeArn

		method, err := apigateway.NewMethod(ctx, base+"-method", &apigateway.MethodArgs{
			RestApi:       api.ID(),
			ResourceId:    resource.ID(),
			HttpMethod:    pulumi.String(verb),
			Authorization: pulumi.String("NONE"),
		}, parent)
		if err != nil {
			return nil, err
		}

		// Non-proxy integration, the function response is returned as the body
		integration, err := apigateway.NewIntegration(ctx, base+"-integration", &apigateway.IntegrationArgs{
			RestApi:               api.ID(),
			ResourceId:            resource.ID(),
			HttpMethod:            method.HttpMethod,
			IntegrationHttpMethod: pulumi.String("POST"),
			Type:                  pulumi.String("AWS"),
			Uri:                   model.Function.Function.InvokeArn,
			PassthroughBehavior:   pulumi.String("WHEN_NO_MATCH"),
		}, parent)
		if err != nil {
			return nil, err
		}

		methodResponse, err := apigateway.NewMethodResponse(ctx, base+"-response-200", &apigateway.MethodResponseArgs{
			RestApi:    api.ID(),
			ResourceId: resource.ID(),
			HttpMethod: method.HttpMethod,
			StatusCode: pulumi.String("200"),
			ResponseParameters: pulumi.BoolMap{
				corsOriginKey: pulumi.Bool(true),
			},
			ResponseModels: pulumi.StringMap{
				"application/json": pulumi.String("Empty"),
			},
		}, parent)
		if err != nil {
			return nil, err
		}

		integrationResponse, err := apigateway.NewIntegrationResponse(ctx, base+"-integration-response-200", &apigateway.IntegrationResponseArgs{
			RestApi:    api.ID(),
			ResourceId: resource.ID(),
			HttpMethod: method.HttpMethod,
			StatusCode: methodResponse.StatusCode,
			ResponseParameters: pulumi.StringMap{
				corsOriginKey: pulumi.String(corsOrigin),
			},
		}, parent, pulumi.DependsOn([]pulumi.Resource{integration}))
		if err != nil {
			return nil, err
		}

		_, err = lambda.NewPermission(ctx, base+"-permission", &lambda.PermissionArgs{
			Action:    pulumi.String("lambda:InvokeFunction"),
			Function:  model.Function.Function.Name,
			Principal: pulumi.String("apigateway.amazonaws.com"),
			SourceArn: pulumi.Sprintf("%s/*/%s/%s", api.ExecutionArn, verb, args.Endpoint),
		}, parent)
		if err != nil {
			return nil, err
		}

		deps = append(deps, method, integration, integrationResponse)
	}

	deployment, err := apigateway.NewDeployment(ctx, id+"-deployment", &apigateway.DeploymentArgs{
		RestApi:     api.ID(),
		Description: pulumi.String(args.Description),
		Triggers:    triggers,
	}, parent, pulumi.DependsOn(deps))
	if err != nil {
		return nil, err
	}

	stage, err := apigateway.NewStage(ctx, id+"-"+apiStageName, &apigateway.StageArgs{
		RestApi:    api.ID(),
		Deployment: deployment.ID(),
		StageName:  pulumi.String(apiStageName),
	}, parent)
	if err != nil {
		return nil, err
	}

	component.RestApi = api
	component.Resource = resource
	component.Stage = stage
	component.URL = pulumi.Sprintf("%s/%s", stage.InvokeUrl, args.Endpoint)
	component.ExecuteArn = pulumi.Sprintf("%s/*", api.ExecutionArn)

	if err := ctx.RegisterResourceOutputs(component, pulumi.Map{
		"url":        component.URL,
		"restApiId":  api.ID(),
		"executeArn": component.ExecuteArn,
	}); err != nil {
		return nil, err
	}
	return component, nil
}

// addCORSPreflight answers OPTIONS with a mock integration listing the allowed methods.
func addCORSPreflight(ctx *pulumi.Context, id string, api *apigateway.RestApi, resource *apigateway.Resource, allowed []string, opts ...pulumi.ResourceOption) ([]pulumi.Resource, error) {
	methods := []string{"OPTIONS"}
	for _, m := range allowed {
		methods = append(methods, strings.ToUpper(m))
	}

	method, err := apigateway.NewMethod(ctx, id+"-options-method", &apigateway.MethodArgs{
		RestApi:       api.ID(),
		ResourceId:    resource.ID(),
		HttpMethod:    pulumi.String("OPTIONS"),
		Authorization: pulumi.String("NONE"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	integration, err := apigateway.NewIntegration(ctx, id+"-options-integration", &apigateway.IntegrationArgs{
		RestApi:    api.ID(),
		ResourceId: resource.ID(),
		HttpMethod: method.HttpMethod,
		Type:       pulumi.String("MOCK"),
		RequestTemplates: pulumi.StringMap{
			"application/json": pulumi.String(`{"statusCode": 200}`),
		},
	}, opts...)
	if err != nil {
		return nil, err
	}

	methodResponse, err := apigateway.NewMethodResponse(ctx, id+"-options-response-200", &apigateway.MethodResponseArgs{
		RestApi:    api.ID(),
		ResourceId: resource.ID(),
		HttpMethod: method.HttpMethod,
		StatusCode: pulumi.String("200"),
		ResponseParameters: pulumi.BoolMap{
			corsOriginKey:  pulumi.Bool(true),
			corsMethodsKey: pulumi.Bool(true),
			corsHeadersKey: pulumi.Bool(true),
		},
	}, opts...)
	if err != nil {
		return nil, err
	}

	integrationResponse, err := apigateway.NewIntegrationResponse(ctx, id+"-options-integration-response-200", &apigateway.IntegrationResponseArgs{
		RestApi:    api.ID(),
		ResourceId: resource.ID(),
		HttpMethod: method.HttpMethod,
		StatusCode: methodResponse.StatusCode,
		ResponseParameters: pulumi.StringMap{
			corsOriginKey:  pulumi.String(corsOrigin),
			corsMethodsKey: pulumi.String("'" + strings.Join(methods, ",") + "'"),
			corsHeadersKey: pulumi.String("'Content-Type,Authorization,X-Amz-Date,X-Api-Key,X-Amz-Security-Token'"),
		},
	}, append(opts, pulumi.DependsOn([]pulumi.Resource{integration}))...)
	if err != nil {
		return nil, err
	}

	return []pulumi.Resource{method, integration, integrationResponse}, nil
}

func sortedVerbs(models []APIModel) []string {
	verbs := make([]string, 0, len(models))
	for _, m := range models {
		verbs = append(verbs, m.Method)
	}
	return upperSorted(verbs)
}

func upperSorted(methods []string) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, strings.ToUpper(m))
	}
	sort.Strings(out)
	return out
}
