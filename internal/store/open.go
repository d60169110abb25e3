// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/apex/log"

	awsx "github.com/staranto/swproxy/internal/aws"
)

// Open builds the Storage named by spec:
//
//	memory               in-process only
//	disk                 DefaultDir()
//	disk:<dir>           the given directory
//	sqlite:<path>        a SQLite database file
//	s3://bucket[/prefix] an S3 bucket, configured from the AWS default chain
func Open(ctx context.Context, spec string) (Storage, error) {
	log.Debugf("opening store %q", spec)

	switch {
	case spec == "memory":
		return NewMemory(), nil
	case spec == "" || spec == "disk":
		dir, ok := DefaultDir()
		if !ok {
			return nil, errors.New("cannot resolve a cache directory; set SWPROXY_CACHE_DIR")
		}
		return NewDisk(dir)
	case strings.HasPrefix(spec, "disk:"):
		return NewDisk(strings.TrimPrefix(spec, "disk:"))
	case strings.HasPrefix(spec, "sqlite:"):
		return OpenSQLite(ctx, strings.TrimPrefix(spec, "sqlite:"))
	case strings.HasPrefix(spec, "s3://"):
		bucket, prefix, err := parseS3Spec(spec)
		if err != nil {
			return nil, err
		}
		cfg, err := awsx.LoadAWSConfig(ctx, awsx.OptionsFromEnv()...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := awsx.NewS3(cfg, awsx.WithS3Endpoint(awsx.EndpointFromEnv()))
		return NewS3(client, bucket, prefix), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSpec, spec)
}

func parseS3Spec(spec string) (bucket, prefix string, err error) {
	u, err := url.Parse(spec)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrUnsupportedSpec, spec, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket", ErrUnsupportedSpec, spec)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
