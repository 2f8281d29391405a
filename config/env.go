package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// ErrEnvInvalidStructure is returned when Feed is given anything other
// than a pointer to a struct.
var ErrEnvInvalidStructure = errors.New("config: env feeder requires a pointer to a struct")

// AffixedEnvFeeder overrides struct fields tagged `env:"NAME"` from
// PREFIX_NAME-shaped environment variables, casting through golobby/cast.
// Prefix-only: this system only ever loads one Config, so there's no need
// for a second affix to disambiguate multiple instances of the same
// struct.
type AffixedEnvFeeder struct {
	Prefix string
}

// NewAffixedEnvFeeder constructs a feeder with the given prefix.
func NewAffixedEnvFeeder(prefix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: strings.ToUpper(prefix)}
}

// Feed walks structure's exported fields (recursing into nested structs)
// and, for each one tagged `env`, sets it from the corresponding
// PREFIX_TAG environment variable if set.
func (f AffixedEnvFeeder) Feed(structure interface{}) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	return f.feedStruct(rv.Elem())
}

func (f AffixedEnvFeeder) feedStruct(rv reflect.Value) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		ft := rv.Type().Field(i)

		if field.Kind() == reflect.Struct {
			if err := f.feedStruct(field); err != nil {
				return fmt.Errorf("%s: %w", ft.Name, err)
			}
			continue
		}

		tag, ok := ft.Tag.Lookup("env")
		if !ok {
			continue
		}
		envName := f.Prefix + "_" + strings.ToUpper(tag)
		raw, set := os.LookupEnv(envName)
		if !set || raw == "" {
			continue
		}
		converted, err := cast.FromType(raw, field.Type())
		if err != nil {
			return fmt.Errorf("%s (%s): %w", ft.Name, envName, err)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	}
	return nil
}
