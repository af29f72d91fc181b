package cmd

import (
	"github.com/mitchellh/mapstructure"
	"github.com/phuslu/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags makes each named flag of fs the source of the viper key with the
// same name.
func bindFlags(fs *pflag.FlagSet, keys ...string) {
	for _, key := range keys {
		flag := fs.Lookup(key)
		if flag == nil {
			log.Panic().Msgf("no flag named %s to bind", key)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			log.Panic().Msgf("error binding flag %s: %v", key, err)
		}
	}
}

// decodeHook lets durations and lists in config files be written as strings.
var decodeHook = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))
