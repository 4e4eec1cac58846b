// Package normalizing implements the final pipeline stage: shaping raw
// inference segments into bounded, validated transcript units and persisting
// them as the item's durable transcript.
package normalizing
