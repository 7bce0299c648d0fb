// Package catalog holds the data model shared by the download pipeline.
//
// A Title is built once from an owned-key record returned by the storefront.
// Its publisher and title slugs are parsed from the title's web URL at
// construction and never change afterwards; they decide where the title lives
// on disk.
//
// A FileVariant is one downloadable upload of a title. Its Digest carries both
// checksum fields the storefront may populate (md5 and md5_hash), with a fixed
// precedence so callers never inspect the raw fields directly.
//
// Layout turns a title into filesystem paths. Filenames are sanitized and
// joined with filepath-securejoin, so a remote filename can never escape the
// title directory.
//
// # Mirror layout
//
//	<root>/
//	  <publisher-slug>/
//	    <title-slug>/
//	      <file>
//	      <file>.md5
//	      old/<YYYY-MM-DD>-<file>
//	    <title-slug>.json
//	  errors.txt
package catalog
