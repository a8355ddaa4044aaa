// Package inttest enables writing of integration tests. Setup Docker containers for the durable
// storage backends (PostgreSQL and Redis) and fake backends served by Gin. Every setup function
// ensures the dependency is ready before returning, ensures resources are cleaned up after the
// tests are finished and returns a client or URL ready to interact with it.
package inttest
