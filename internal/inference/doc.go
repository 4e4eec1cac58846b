// Package inference implements the third pipeline stage: running speech
// inference over normalized audio, with quality tiers routed by duration.
package inference
