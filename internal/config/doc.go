// Package config turns flat key/value configuration into typed, immutable
// snapshots.
//
// Sources are flat string maps. They come from HCL or YAML files, from the
// process environment and from command line overrides; Merge combines them,
// later sources winning. Keys are normalized to environment style, so
// "banner.path", "banner-path" and "BANNER_PATH" all name the same option.
//
// Each extension registers a Namespace: a name and a constructor for its
// option struct. BindAll binds every namespace with caarlos0/env using the
// merged map as the environment and "<NAMESPACE>_" as the prefix. A field
// tagged `env:"PATH,required"` in namespace "banner" therefore reads
// BANNER_PATH, and a missing required key fails the whole binding with
// MissingRequiredConfig before any build step runs. Unrecognized keys are
// ignored.
package config
