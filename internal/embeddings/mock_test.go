package embeddings

import (
	"context"
	"math"
	"testing"
)

func TestMockClientDeterministic(t *testing.T) {
	c := NewMockClientWithDimensions(64)
	ctx := context.Background()

	first, err := c.GenerateEmbeddings(ctx, []string{"slow dashboard", "love the editor"})
	if err != nil {
		t.Fatal(err)
	}

	second, err := c.GenerateEmbeddings(ctx, []string{"slow dashboard", "love the editor"})
	if err != nil {
		t.Fatal(err)
	}

	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("embedding %d differs at dim %d across calls", i, j)
			}
		}
	}

	// Different texts produce different vectors.
	same := true
	for j := range first[0] {
		if first[0][j] != first[1][j] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical embeddings")
	}
}

func TestMockClientUnitNorm(t *testing.T) {
	c := NewMockClientWithDimensions(32)

	out, err := c.GenerateEmbeddings(context.Background(), []string{"anything"})
	if err != nil {
		t.Fatal(err)
	}

	var sum float64
	for _, v := range out[0] {
		sum += float64(v) * float64(v)
	}

	if norm := math.Sqrt(sum); math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("norm = %f, want 1.0", norm)
	}
}

func TestMockClientRejectsEmptyInput(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	if _, err := c.GenerateEmbeddings(ctx, nil); err == nil {
		t.Error("expected error for no texts")
	}

	if _, err := c.GenerateEmbeddings(ctx, []string{"ok", ""}); err == nil {
		t.Error("expected error for empty text")
	}
}
