package services

import (
	"errors"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/amplify"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const defaultBuildSpec = `version: 1
frontend:
  phases:
    preBuild:
      commands:
        - npm ci
    build:
      commands:
        - npm run build
  artifacts:
    baseDirectory: build
    files:
      - '**/*'
  cache:
    paths:
      - node_modules/**/*
`

// HostingConfig describes an Amplify app built from a git repository.
type HostingConfig struct {
	ID          string
	Name        string
	Repository  string
	Branch      string
	AccessToken pulumi.StringInput
	BuildSpec   string
	Environment map[string]pulumi.StringInput
}

// Hosting is an Amplify app with one auto-built branch.
type Hosting struct {
	App    *amplify.App
	Branch *amplify.Branch
	URL    pulumi.StringOutput
}

// NewHosting creates the frontend hosting of a subsystem.
func NewHosting(ctx *pulumi.Context, prefix ServicePrefix, cfg HostingConfig, opts ...pulumi.ResourceOption) (*Hosting, error) {
	if cfg.Repository == "" || cfg.AccessToken == nil {
		return nil, errors.New("hosting requires a repository and an access token")
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	buildSpec := cfg.BuildSpec
	if buildSpec == "" {
		buildSpec = defaultBuildSpec
	}

	id := prefix.ResourceID(cfg.ID)
	name := prefix.ResourceName(nameOrDerived(cfg.Name, cfg.ID))

	env := pulumi.StringMap{}
	for k, v := range cfg.Environment {
		env[k] = v
	}

	app, err := amplify.NewApp(ctx, id, &amplify.AppArgs{
		Name:                 pulumi.String(name),
		Repository:           pulumi.String(cfg.Repository),
		AccessToken:          cfg.AccessToken,
		Platform:             pulumi.String("WEB"),
		BuildSpec:            pulumi.String(buildSpec),
		EnvironmentVariables: env,
		Tags:                 nameTags(name),
	}, opts...)
	if err != nil {
		return nil, err
	}

	br, err := amplify.NewBranch(ctx, id+"-"+branch, &amplify.BranchArgs{
		AppId:           app.ID(),
		BranchName:      pulumi.String(branch),
		EnableAutoBuild: pulumi.Bool(true),
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &Hosting{
		App:    app,
		Branch: br,
		URL:    pulumi.Sprintf("https://%s.%s", branch, app.DefaultDomain),
	}, nil
}
