// Package sticker defines the data model shared by the conversion pipeline:
// asset references with an explicit media kind, content keys derived from
// source URLs, handles to cached GIF files, and the error taxonomy returned
// by converters.
//
// Kinds are attached by whoever resolves sticker metadata. Nothing in the
// conversion core inspects URLs to guess what an asset is.
package sticker
