// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/staranto/swproxy/internal/interceptor"
)

type FlagValidatorType func(any) error

func FlagValidators(value any, validators ...FlagValidatorType) error {
	for _, v := range validators {
		if err := v(value); err != nil {
			return err
		}
	}
	return nil
}

// JammedFlagValidator verifies that the arg following a flag does not begin
// with '--'.  urfave/cli allows this and I don't see how to turn it off.
func JammedFlagValidator(value any) error {
	if strings.HasPrefix(value.(string), "--") {
		return errors.New("must not begin with '--'")
	}
	return nil
}

func OutputValidator(value any) error {
	validOutputFlagValues := []string{"text", "json", "raw", "yaml"}
	if !slices.Contains(validOutputFlagValues, value.(string)) {
		return fmt.Errorf("must be one of %v", validOutputFlagValues)
	}
	return nil
}

// StoreValidator checks the backend prefix of a store spec. Whether the
// backend can actually be opened is only known at open time.
func StoreValidator(value any) error {
	spec := value.(string)
	switch {
	case spec == "memory", spec == "disk":
	case strings.HasPrefix(spec, "disk:"):
	case strings.HasPrefix(spec, "sqlite:") && len(spec) > len("sqlite:"):
	case strings.HasPrefix(spec, "s3://") && len(spec) > len("s3://"):
	default:
		return fmt.Errorf("unsupported store %q", spec)
	}
	return nil
}

func UpstreamValidator(value any) error {
	_, err := interceptor.ParseOrigin(value.(string))
	return err
}
