// Package integrationtests drives the whole pipeline, from configuration
// values through build, sequencing, session boot and hot rebuild, using the
// shared test modules.
package integrationtests
