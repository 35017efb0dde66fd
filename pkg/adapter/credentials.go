package adapter

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/leapstack-labs/lookpipe/pkg/core"
	"gopkg.in/yaml.v3"
)

// ReadCredentials reads the credentials file at path. Any failure to
// resolve or read it is a CredentialsError.
func ReadCredentials(path string) ([]byte, error) {
	if path == "" {
		return nil, &core.CredentialsError{Path: path, Err: errors.New("no credentials path configured")}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &core.CredentialsError{Path: path}
	}
	if info.IsDir() {
		return nil, &core.CredentialsError{Path: path, Err: errors.New("path is a directory")}
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, &core.CredentialsError{Path: path, Err: err}
	}
	return data, nil
}

// SQLCredentials is the YAML credentials file used by SQL warehouses.
type SQLCredentials struct {
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"dbname"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	SSLMode  string            `yaml:"sslmode"`
	Path     string            `yaml:"path"`
	Options  map[string]string `yaml:"options"`
}

// LoadSQLCredentials reads a YAML credentials file. When the document has a
// top-level key named section, that block is used; otherwise the whole
// document is. ${VAR} references are expanded from the environment.
func LoadSQLCredentials(path, section string) (*SQLCredentials, error) {
	data, err := ReadCredentials(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &core.CredentialsError{Path: path, Err: fmt.Errorf("invalid YAML: %w", err)}
	}

	var creds SQLCredentials
	if node, ok := doc[section]; ok && section != "" {
		err = node.Decode(&creds)
	} else {
		err = yaml.Unmarshal(data, &creds)
	}
	if err != nil {
		return nil, &core.CredentialsError{Path: path, Err: fmt.Errorf("invalid credentials: %w", err)}
	}

	creds.Host = ExpandEnv(creds.Host)
	creds.User = ExpandEnv(creds.User)
	creds.Password = ExpandEnv(creds.Password)
	creds.Database = ExpandEnv(creds.Database)
	creds.Path = ExpandEnv(creds.Path)
	return &creds, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv expands ${VAR} patterns with environment variable values.
// Unset variables are left as written.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}
