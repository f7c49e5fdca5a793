package secrets

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "secrets")

// Provider resolves a named secret, typically the GitHub token. Values are
// returned to the caller only; they must never appear in logs or errors.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvProvider reads secrets straight from environment variables. Used in
// local development and CI.
type EnvProvider struct{}

var _ Provider = (*EnvProvider)(nil)

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return value, nil
}

// ssmAPI is the slice of the SSM client the provider uses.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMProvider reads SecureString parameters from AWS Systems Manager
// Parameter Store.
type SSMProvider struct {
	client ssmAPI
}

var _ Provider = (*SSMProvider)(nil)

// NewSSMProvider builds a provider from the default AWS credential chain.
func NewSSMProvider(ctx context.Context) (*SSMProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return &SSMProvider{client: ssm.NewFromConfig(cfg)}, nil
}

// NewSSMProviderWithClient injects a prebuilt client, primarily for tests.
func NewSSMProviderWithClient(client ssmAPI) *SSMProvider {
	return &SSMProvider{client: client}
}

func (p *SSMProvider) GetSecret(ctx context.Context, name string) (string, error) {
	decrypt := true
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to read SSM parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", name)
	}
	logger.WithField("parameter", name).Debug("secrets: parameter resolved")
	return *out.Parameter.Value, nil
}
