// Package mysql persists the history of counter runs. Runs are kept in a
// JSON-lines file for local use or in MySQL, whose schema is applied from the
// embedded migrations on startup.
package mysql
