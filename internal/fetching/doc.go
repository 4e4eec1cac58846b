// Package fetching implements the first pipeline stage: downloading the media
// behind a submission's external identifier into the staging directory.
package fetching
