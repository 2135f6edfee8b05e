// Package library reconciles track descriptors against audio files already on disk and drives an
// external downloader over the rest.
//
// Files are named "<Artist> - <Title>.<format>" with "/" replaced by "-". A file counts as present
// when its name parses to the track's identity key, or, for files named some other way, when its
// embedded artist and title tags do.
package library
