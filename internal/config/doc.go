// Package config loads the JSON runtime configuration of counterctl. The file
// is located through COUNTER_CONFIG and a handful of environment variables
// override the network selection.
package config
