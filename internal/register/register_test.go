package register

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, isPlaceholder(""))
	assert.True(t, isPlaceholder("unknown"))
	assert.False(t, isPlaceholder("abc123"))
}

func TestValidSourceType(t *testing.T) {
	assert.True(t, validSourceType(""))
	assert.True(t, validSourceType("s3"))
	assert.True(t, validSourceType("gs"))
	assert.True(t, validSourceType("https"))
	assert.False(t, validSourceType("ftp"))
}

func TestValidIO_DropsIncomplete(t *testing.T) {
	items := []IOItem{
		{Hash: "h1", Path: "/a"},
		{Hash: "", Path: "/b"},
		{Hash: "h2", Path: ""},
	}
	out := validIO(items)
	assert.Len(t, out, 1)
	assert.Equal(t, "h1", out[0].Hash)
}

func TestBatchArtifactsBySize_PreservesOrderAndSplits(t *testing.T) {
	mk := func(digest string) Artifact {
		return Artifact{Hashes: []HashPair{{Algorithm: "blake3", Digest: digest}}, Size: 10}
	}
	artifacts := []Artifact{mk("a"), mk("b"), mk("c")}

	batches := batchArtifactsBySize(artifacts, 1<<20) // generous limit -> one batch
	assert.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)

	tiny := batchArtifactsBySize(artifacts, 40) // forces a split
	assert.GreaterOrEqual(t, len(tiny), 2)
	var flattened []string
	for _, b := range tiny {
		for _, a := range b {
			flattened = append(flattened, a.Hashes[0].Digest)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, flattened)
}

func TestBatchArtifactsBySize_OversizedArtifactAlone(t *testing.T) {
	huge := Artifact{
		Hashes:   []HashPair{{Algorithm: "blake3", Digest: strings.Repeat("x", 200)}},
		Size:     10,
		Metadata: strings.Repeat("m", 500),
	}
	small := Artifact{Hashes: []HashPair{{Algorithm: "blake3", Digest: "s"}}, Size: 1}

	batches := batchArtifactsBySize([]Artifact{small, huge, small}, 300)
	assert.True(t, len(batches) >= 2)
	found := false
	for _, b := range batches {
		if len(b) == 1 && b[0].Hashes[0].Digest == huge.Hashes[0].Digest {
			found = true
		}
	}
	assert.True(t, found, "oversized artifact should be sent alone")
}

func TestResultFail_AccumulatesErrors(t *testing.T) {
	r := &Result{}
	r.fail("one")
	r.fail("two")
	assert.Equal(t, []string{"one", "two"}, r.Errors)
}
