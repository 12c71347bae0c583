package store

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Factory opens a backend from its free-form settings.
type Factory func(settings map[string]any) (KV, error)

// registry holds registered backend factories.
var registry = make(map[string]Factory)

// Register registers a backend factory.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Backends returns the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the named backend.
func Open(name string, settings map[string]any) (KV, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.Newf("unknown store backend %q (available: %v)", name, Backends())
	}
	kv, err := factory(settings)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s store", name)
	}
	return kv, nil
}

// decodeSettings decodes settings into out, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
