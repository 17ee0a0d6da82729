// Package provider implements an OAI-PMH endpoint over a legacy
// bibliographic catalog. Harvest continuation state travels inside an
// encrypted resumption token, so the server keeps no session state
// between requests.
package provider

// Version of the provider and its tools.
const Version = "0.3.1"
