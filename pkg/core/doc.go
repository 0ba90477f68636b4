// Package core holds the adapter-neutral types shared by nflpipe's public
// packages: connection configuration, table metadata and row wrappers.
//
// It has no dependencies beyond the standard library so that adapters can
// import it without pulling in the pipeline.
package core
