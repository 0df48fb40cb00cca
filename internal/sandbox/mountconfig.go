package sandbox

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// DefaultMountsConfigPath is the optional file that extends the built-in
// default mount list; it only adds directories and cannot replace or remove
// any built-in entry. Sites that need an extra read-only directory (a
// distro's multiarch lib path, a custom toolchain root) can list it here
// instead of passing --readable on every invocation.
const DefaultMountsConfigPath = "/etc/omogenexec/mounts.yaml"

// mountsConfig mirrors DefaultMountsConfigPath's shape on disk.
type mountsConfig struct {
	Readonly []string `yaml:"readonly"`
}

// LoadExtraDefaultMounts reads DefaultMountsConfigPath if present and
// returns the extra read-only directories it names. A missing file is not
// an error: the default mount list is complete on its own.
func LoadExtraDefaultMounts() ([]string, error) {
	data, err := os.ReadFile(DefaultMountsConfigPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", DefaultMountsConfigPath)
	}

	var cfg mountsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", DefaultMountsConfigPath)
	}
	return cfg.Readonly, nil
}
