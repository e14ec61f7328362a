// Package app contains the core application logic. It wires configuration
// sources, the module registry, the build pipeline, the artifact store and
// the replay session into the build, run and watch lifecycles, decoupled
// from any specific entrypoint like a CLI.
package app
