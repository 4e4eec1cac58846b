package queue

import (
	"encoding/json"
	"fmt"
)

// Bag carries stage outputs forward as per-stage tagged JSON sections. Each
// stage owns exactly one section: it may write or rewrite its own section
// (retries overwrite the previous attempt) but never a section written by an
// earlier stage.
type Bag map[Stage]json.RawMessage

// BagFromJSON decodes a stored bag, returning an empty bag for blank input.
func BagFromJSON(data string) Bag {
	bag := Bag{}
	if data == "" {
		return bag
	}
	_ = json.Unmarshal([]byte(data), &bag)
	return bag
}

// JSON encodes the bag for storage.
func (b Bag) JSON() string {
	if len(b) == 0 {
		return ""
	}
	encoded, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// Has reports whether a stage has written its section.
func (b Bag) Has(stage Stage) bool {
	_, ok := b[stage]
	return ok
}

// WriteSection records a stage's output, replacing any prior section for the
// same stage.
func (b Bag) WriteSection(stage Stage, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s section: %w", stage, err)
	}
	b[stage] = encoded
	return nil
}

// DeleteSection removes a stage's output. Used when rolling a failed attempt
// back to its pre-attempt state.
func (b Bag) DeleteSection(stage Stage) {
	delete(b, stage)
}

// Decode unmarshals a stage's section into out.
func (b Bag) Decode(stage Stage, out any) error {
	raw, ok := b[stage]
	if !ok {
		return fmt.Errorf("metadata section %s missing", stage)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s section: %w", stage, err)
	}
	return nil
}

// Clone returns an independent copy of the bag.
func (b Bag) Clone() Bag {
	cp := make(Bag, len(b))
	for stage, raw := range b {
		dup := make(json.RawMessage, len(raw))
		copy(dup, raw)
		cp[stage] = dup
	}
	return cp
}

// FetchOutput is the fetch stage's metadata section.
type FetchOutput struct {
	LocalPath string `json:"local_path"`
	SizeBytes int64  `json:"size_bytes"`
}

// TransformOutput is the transform stage's metadata section.
type TransformOutput struct {
	NormalizedPath  string  `json:"normalized_path"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	Codec           string  `json:"codec,omitempty"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	Channels        int     `json:"channels,omitempty"`
}

// InferredUnit is one raw inference segment before normalization.
type InferredUnit struct {
	StartSeconds float64 `json:"start"`
	EndSeconds   float64 `json:"end"`
	Content      string  `json:"content"`
	Confidence   float64 `json:"confidence"`
}

// InferOutput is the inference stage's metadata section.
type InferOutput struct {
	Language        string         `json:"language"`
	DurationSeconds float64        `json:"duration_seconds"`
	Tier            string         `json:"tier"`
	Units           []InferredUnit `json:"units"`
}

// NormalizeOutput is the normalize stage's metadata section.
type NormalizeOutput struct {
	UnitCount int `json:"unit_count"`
	SplitFrom int `json:"split_from"`
}
