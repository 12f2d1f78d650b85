// Package notify publishes the outcome of every run to the configured sinks:
// the audit log, a Redis list and a RabbitMQ queue.
package notify
