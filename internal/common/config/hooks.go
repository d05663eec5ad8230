package config

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnumTypes lists the string types decoded case-insensitively. Packages defining such types register them
// before configuration is loaded.
var EnumTypes []reflect.Type

// CustomHooks keeps viper's default duration and slice hooks and adds the enum hook.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		LowercaseEnumHookFunc(),
	)),
}

// LowercaseEnumHookFunc lower-cases and trims strings decoded into one of EnumTypes, so "SYNC" and " sync "
// both decode to "sync".
func LowercaseEnumHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// check that src and target types are valid
		if f.Kind() != reflect.String || !isEnumType(t) {
			return data, nil
		}
		return strings.ToLower(strings.TrimSpace(data.(string))), nil
	}
}

func isEnumType(t reflect.Type) bool {
	for _, enum := range EnumTypes {
		if t == enum {
			return true
		}
	}
	return false
}
