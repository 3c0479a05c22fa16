// Package secrets resolves the API bearer token. A token value is either
// a literal, or an aws:ssm:<region>:<name> reference to an encrypted
// AWS Systems Manager parameter.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ErrNoToken means no usable bearer token was configured or resolved.
// The CLI turns this into its dedicated missing-credential exit code.
var ErrNoToken = errors.New("bearer token unset")

const refPrefix = "aws:ssm:"

// Ref is a parsed aws:ssm:<region>:<name> parameter reference.
type Ref struct {
	Region string
	Name   string
}

// ParseRef splits an SSM reference into region and parameter name.
// Returns false for literal token values.
func ParseRef(token string) (Ref, bool) {
	if !strings.HasPrefix(token, refPrefix) {
		return Ref{}, false
	}
	parts := strings.Split(token, ":")
	if len(parts) != 4 || parts[2] == "" || parts[3] == "" {
		return Ref{}, false
	}
	return Ref{Region: parts[2], Name: parts[3]}, true
}

// GetParametersAPI is the slice of the SSM client used by this package.
type GetParametersAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Resolve returns the bearer token ready for use: literals pass through,
// SSM references are fetched with decryption. Empty and "UNSET" values
// return ErrNoToken.
func Resolve(ctx context.Context, token string) (string, error) {
	if token == "" || token == "UNSET" {
		return "", ErrNoToken
	}

	ref, ok := ParseRef(token)
	if !ok {
		if strings.HasPrefix(token, refPrefix) {
			return "", fmt.Errorf("%w: malformed SSM reference %q", ErrNoToken, token)
		}
		return token, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(ref.Region))
	if err != nil {
		return "", fmt.Errorf("%w: loading AWS config: %v", ErrNoToken, err)
	}

	return fetch(ctx, ssm.NewFromConfig(cfg), ref.Name)
}

// fetch retrieves one decrypted parameter value.
func fetch(ctx context.Context, api GetParametersAPI, name string) (string, error) {
	out, err := api.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          []string{name},
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("%w: fetching SSM parameter %s: %v", ErrNoToken, name, err)
	}
	if len(out.Parameters) == 0 {
		return "", fmt.Errorf("%w: SSM parameter %s not found", ErrNoToken, name)
	}

	value := aws.ToString(out.Parameters[0].Value)
	if value == "" {
		return "", fmt.Errorf("%w: SSM parameter %s is empty", ErrNoToken, name)
	}
	return value, nil
}
