package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

func TestEnvProvider_GetSecret(t *testing.T) {
	t.Setenv("ACTIONSPEC_TEST_TOKEN", "ghp_sample")

	p := NewEnvProvider()
	got, err := p.GetSecret(context.Background(), "ACTIONSPEC_TEST_TOKEN")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if got != "ghp_sample" {
		t.Errorf("GetSecret() = %q, want ghp_sample", got)
	}
}

func TestEnvProvider_GetSecret_Missing(t *testing.T) {
	p := NewEnvProvider()
	if _, err := p.GetSecret(context.Background(), "ACTIONSPEC_DEFINITELY_NOT_SET"); err == nil {
		t.Fatal("GetSecret() on unset variable should fail")
	}
}

type fakeSSM struct {
	params map[string]string
	err    error
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.params[*in.Name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: &value},
	}, nil
}

func TestSSMProvider_GetSecret(t *testing.T) {
	p := NewSSMProviderWithClient(&fakeSSM{
		params: map[string]string{"/actionspec/github-token": "ghp_from_ssm"},
	})

	got, err := p.GetSecret(context.Background(), "/actionspec/github-token")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if got != "ghp_from_ssm" {
		t.Errorf("GetSecret() = %q, want ghp_from_ssm", got)
	}
}

func TestSSMProvider_GetSecret_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeSSM
	}{
		{name: "missing parameter", client: &fakeSSM{params: map[string]string{}}},
		{name: "api failure", client: &fakeSSM{err: errors.New("throttled")}},
		{name: "empty value", client: &fakeSSM{params: map[string]string{"/p": ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSSMProviderWithClient(tt.client)
			_, err := p.GetSecret(context.Background(), "/p")
			if err == nil {
				t.Fatal("GetSecret() should fail")
			}
			// Error text may carry the parameter name but never a value.
			if strings.Contains(err.Error(), "ghp_") {
				t.Errorf("error leaks a secret value: %v", err)
			}
		})
	}
}
