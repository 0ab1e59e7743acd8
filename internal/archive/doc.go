// Package archive is the HTTP client for the remote light-curve catalogue.
// Search discovers the files available for a KIC target; Download streams one
// file into a local scratch directory. Authentication (API key, bearer,
// basic) is handled by a shared RoundTripper configured from the archive
// section of the config file.
package archive
