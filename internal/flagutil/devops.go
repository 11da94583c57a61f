package flagutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"sigs.k8s.io/prow/pkg/config/secret"

	"github.com/petr-muller/escalations/internal/config"
	"github.com/petr-muller/escalations/internal/devops"
)

const (
	tokenFileName string = "devops-token"
)

// DevOpsOptions holds the flags needed to talk to the tracker REST API
type DevOpsOptions struct {
	Endpoint     string
	Organization string
	TokenFile    string
	Timeout      time.Duration

	getenv func(string) string
}

// AddPFlags injects tracker options into the given pflag.FlagSet
func (o *DevOpsOptions) AddPFlags(fs *pflag.FlagSet) {
	defaultTokenPath := filepath.Join(config.MustConfigDir(), tokenFileName)

	fs.StringVar(&o.Endpoint, "devops.endpoint", "", "Azure DevOps endpoint URL (defaults to the config file value or "+devops.DefaultBaseURL+")")
	fs.StringVar(&o.Organization, "devops.organization", "", "Azure DevOps organization (overrides the config file and "+config.EnvOrganization+")")
	fs.StringVar(&o.TokenFile, "devops.token-file", defaultTokenPath, "Path to the file containing the personal access token, used when "+config.EnvToken+" is not set")
	fs.DurationVar(&o.Timeout, "devops.timeout", 30*time.Second, "Timeout of a single API request")
}

// Complete fills options not given on the command line from the configuration
func (o *DevOpsOptions) Complete(cfg *config.Config) {
	if o.Endpoint == "" {
		o.Endpoint = cfg.DevOps.BaseURL
	}
	if o.Organization == "" {
		o.Organization = cfg.DevOps.Organization
	} else {
		cfg.DevOps.Organization = o.Organization
	}
}

// Validate checks that the options are usable
func (o *DevOpsOptions) Validate() error {
	if o.Organization == "" {
		return fmt.Errorf("organization is required: use --devops.organization or %s", config.EnvOrganization)
	}
	if o.Timeout <= 0 {
		return errors.New("--devops.timeout must be positive")
	}
	return nil
}

// Token returns the personal access token from the environment or the token file
func (o *DevOpsOptions) Token() (string, error) {
	if token := o.envToken(); token != "" {
		return token, nil
	}
	generator, err := o.tokenGenerator()
	if err != nil {
		return "", err
	}
	return string(generator()), nil
}

func (o *DevOpsOptions) envToken() string {
	getenv := o.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return strings.TrimSpace(getenv(config.EnvToken))
}

// tokenGenerator loads the token file into the secret agent, which keeps
// reloading it for the lifetime of the process
func (o *DevOpsOptions) tokenGenerator() (func() []byte, error) {
	if err := secret.Add(o.TokenFile); err != nil {
		return nil, fmt.Errorf("no %s set and cannot read token file: %w", config.EnvToken, err)
	}
	if len(secret.GetSecret(o.TokenFile)) == 0 {
		return nil, fmt.Errorf("token file %s is empty", o.TokenFile)
	}
	return secret.GetTokenGenerator(o.TokenFile), nil
}

// Client creates a REST client from the options. A token read from the token
// file is refreshed whenever the file changes.
func (o *DevOpsOptions) Client() (*devops.Client, error) {
	clientOpts := devops.Options{
		BaseURL:      o.Endpoint,
		Organization: o.Organization,
		Timeout:      o.Timeout,
	}
	if token := o.envToken(); token != "" {
		clientOpts.Token = token
	} else {
		generator, err := o.tokenGenerator()
		if err != nil {
			return nil, err
		}
		clientOpts.TokenGenerator = generator
	}
	return devops.NewClient(clientOpts), nil
}
