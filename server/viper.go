package server

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigureFlagSet adds this package's command-line options to a flag set
func ConfigureFlagSet(applicationName string, f *pflag.FlagSet) {
	f.StringP(FileFlagName, FileFlagShorthand, applicationName, "the configuration file name, without extension")
}

// NewViper produces a Viper instance configured with this package's conventions.
// The applicationName is used as the configuration file name, the environment prefix,
// and to generate the paths under /etc and $HOME to look for configuration files.
// Automatic environment mode is turned on.
func NewViper(applicationName string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(applicationName)
	v.AddConfigPath(fmt.Sprintf("/etc/%s", applicationName))
	v.AddConfigPath(fmt.Sprintf("$HOME/.%s", applicationName))
	v.AddConfigPath(".")

	v.SetEnvPrefix(applicationName)
	v.AutomaticEnv()

	return v
}

// ParseAndBind parses the given flag set using the supplied arguments and then binds
// the flag set to the specified Viper instance.  If arguments is nil, os.Args is used instead.
// If the flag set carries a FileFlagName value, it overrides the configuration file name.
func ParseAndBind(v *viper.Viper, flagSet *pflag.FlagSet, arguments []string) error {
	if arguments == nil {
		arguments = os.Args
	}

	if err := flagSet.Parse(arguments); err != nil {
		return err
	}

	if fileFlag := flagSet.Lookup(FileFlagName); fileFlag != nil && fileFlag.Changed {
		v.SetConfigName(fileFlag.Value.String())
	}

	return v.BindPFlags(flagSet)
}
