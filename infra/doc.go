// Package infra holds the adapters that connect the fleet manager to the
// outside: the MQTT vehicle link, the loopback simulator, metrics sinks,
// Sentry and the usage database. Nothing in core imports them.
package infra
