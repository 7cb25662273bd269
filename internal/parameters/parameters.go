// Package parameters parses the user's model configuration string into Params, a map[string]string
// that is then consumed key by key by the model being configured.
//
// A configuration string looks like "max_disparity=96,dfn=false,cost_volume=concat". A key without
// a value (e.g.: "dfn") is kept with an empty value, which boolean parameters read as true.
package parameters

import (
	"slices"
	"strconv"
	"strings"

	"github.com/janpfeifer/stereo/internal/generics"
	"github.com/pkg/errors"
)

// Params represent generic configuration parameters.
type Params map[string]string

// Value types supported by GetParamOr and PopParamOr.
type Value interface {
	bool | int | float32 | float64 | string
}

// NewFromConfigString create params from user's configuration string.
// Empty parts (e.g. a trailing ",") and surrounding spaces are ignored.
// See GetParamOr and PopParamOr to parse values from this map.
func NewFromConfigString(config string) Params {
	params := make(Params)
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		subParts := strings.SplitN(part, "=", 2) // Split into up to 2 parts to handle '=' in values
		if len(subParts) == 1 {
			params[subParts[0]] = ""
		} else {
			params[strings.TrimSpace(subParts[0])] = strings.TrimSpace(subParts[1])
		}
	}
	return params
}

// PopParamOr is like GetParamOr, but it also deletes from the params map the retrieved parameter.
func PopParamOr[T Value](params Params, key string, defaultValue T) (T, error) {
	value, err := GetParamOr(params, key, defaultValue)
	if err != nil {
		return value, err
	}
	delete(params, key)
	return value, nil
}

// GetParamOr attempts to parse a parameter to the given type if the key is present, or returns the defaultValue
// if not.
//
// For bool types, a key without a value is interpreted as true.
func GetParamOr[T Value](params Params, key string, defaultValue T) (T, error) {
	vAny := (any)(defaultValue)
	var t T
	toT := func(v any) T { return v.(T) }
	value, exists := params[key]
	if !exists {
		return defaultValue, nil
	}
	switch vAny.(type) {
	case string:
		return toT(value), nil
	case int:
		if value == "" {
			return defaultValue, nil
		}
		parsedValue, err := strconv.Atoi(value)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to int", key, value)
		}
		return toT(parsedValue), nil
	case float32:
		if value == "" {
			return defaultValue, nil
		}
		parsedValue, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to float32", key, value)
		}
		return toT(float32(parsedValue)), nil
	case float64:
		if value == "" {
			return defaultValue, nil
		}
		parsedValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to float64", key, value)
		}
		return toT(parsedValue), nil
	case bool:
		if value == "" || strings.ToLower(value) == "true" || value == "1" { // Empty value is considered "true"
			return toT(true), nil
		}
		if strings.ToLower(value) == "false" || value == "0" {
			return toT(false), nil
		}
		return defaultValue, errors.Errorf("failed to parse configuration %s=%q to bool", key, value)
	}
	return defaultValue, nil
}

// AssertEmpty returns an error listing the keys left in params, if any.
// It is used after all known parameters have been popped, to catch typos in the configuration.
func AssertEmpty(params Params) error {
	if len(params) == 0 {
		return nil
	}
	unknown := slices.Collect(generics.SortedKeys(params))
	return errors.Errorf("unknown configuration parameter(s): %q", unknown)
}
