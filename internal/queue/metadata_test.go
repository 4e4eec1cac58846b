package queue

import "testing"

func TestBagSectionsSurviveRewrite(t *testing.T) {
	bag := Bag{}
	if err := bag.WriteSection(StageFetch, FetchOutput{LocalPath: "/tmp/one", SizeBytes: 1}); err != nil {
		t.Fatalf("write fetch: %v", err)
	}
	if err := bag.WriteSection(StageTransform, TransformOutput{NormalizedPath: "/tmp/norm", DurationSeconds: 12}); err != nil {
		t.Fatalf("write transform: %v", err)
	}

	// A retry rewrites the owner's section without touching earlier ones.
	if err := bag.WriteSection(StageTransform, TransformOutput{NormalizedPath: "/tmp/norm2", DurationSeconds: 13}); err != nil {
		t.Fatalf("rewrite transform: %v", err)
	}

	round := BagFromJSON(bag.JSON())
	var fetch FetchOutput
	if err := round.Decode(StageFetch, &fetch); err != nil {
		t.Fatalf("decode fetch: %v", err)
	}
	if fetch.LocalPath != "/tmp/one" {
		t.Errorf("fetch path = %q", fetch.LocalPath)
	}
	var transform TransformOutput
	if err := round.Decode(StageTransform, &transform); err != nil {
		t.Fatalf("decode transform: %v", err)
	}
	if transform.NormalizedPath != "/tmp/norm2" || transform.DurationSeconds != 13 {
		t.Errorf("transform section = %+v", transform)
	}
}

func TestBagDecodeMissingSection(t *testing.T) {
	bag := Bag{}
	var out FetchOutput
	if err := bag.Decode(StageFetch, &out); err == nil {
		t.Error("decoding a missing section should fail")
	}
}

func TestBagCloneIsIndependent(t *testing.T) {
	bag := Bag{}
	if err := bag.WriteSection(StageFetch, FetchOutput{LocalPath: "/tmp/a"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	cp := bag.Clone()
	cp.DeleteSection(StageFetch)
	if !bag.Has(StageFetch) {
		t.Error("deleting from the clone must not mutate the original")
	}
}
