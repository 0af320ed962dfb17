/*
Package server serves brain surface datasets over HTTP.

Datasets are declared in a TOML configuration file and loaded at startup
into an immutable registry; a reload builds a complete new registry and
swaps it in, so requests never see a partially loaded dataset.  Every route
lives under /api/ and is described by the RAML document at /api/interface.

Malformed queries are answered with an empty JSON array and logged, valid
queries for missing data with null, and unknown datasets or alignment models
with a 404 JSON error.
*/
package server
