// Package providers holds helpers shared by the generic OAuth2 and API-key
// clients and the built-in vendor modules under its subdirectories.
package providers
