// Package core contains the credential and entity domain, the store and API
// client contracts, and the Manager that drives authorization and token
// lifecycle notifications. Vendor modules and storage adapters depend on this
// package; core must not depend on them.
package core
