package sqlite

import (
	"fmt"

	"github.com/loykin/sqlupgrade/internal/constants"
)

const foreignKeysParam = "_pragma=foreign_keys(1)"

type Config struct {
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

func (c *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"path": c.Path,
		"dsn":  c.DSN,
	}
}

// BuildDSN returns the explicit DSN or a file DSN for Path with a busy timeout.
func (c *Config) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Path == "" {
		return ""
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&%s", c.Path, constants.DefaultSQLiteBusyTimeoutMS, foreignKeysParam)
}
