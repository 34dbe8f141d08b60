// Package startup handles configuration loading from the environment,
// directory setup, dependency checks, and the structured startup and
// shutdown logging that frames the service lifecycle.
package startup
