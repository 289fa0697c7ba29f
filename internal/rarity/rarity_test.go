package rarity

import "testing"

func TestIsRareBelowThreshold(t *testing.T) {
	b := NewBuilder(10)
	for i := 0; i < 3; i++ {
		b.Add(VocabularyDiagnosis, "E119")
	}
	idx := b.Build()
	if !idx.IsRare(VocabularyDiagnosis, "E119") {
		t.Fatalf("expected a code seen 3 times with K=10 to be rare")
	}
}

func TestIsNotRareAtOrAboveThreshold(t *testing.T) {
	b := NewBuilder(10)
	for i := 0; i < 10; i++ {
		b.Add(VocabularyDiagnosis, "E119")
	}
	idx := b.Build()
	if idx.IsRare(VocabularyDiagnosis, "E119") {
		t.Fatalf("expected a code seen exactly K times not to be rare")
	}
}

func TestIsRareUnseenCodeNotRare(t *testing.T) {
	b := NewBuilder(10)
	idx := b.Build()
	if idx.IsRare(VocabularyDiagnosis, "Z9999") {
		t.Fatalf("expected an unseen code not to be flagged rare")
	}
}

func TestIsRareEmptyCodeNeverRare(t *testing.T) {
	b := NewBuilder(10)
	idx := b.Build()
	if idx.IsRare(VocabularyDiagnosis, "") {
		t.Fatalf("expected empty code never to be rare")
	}
}

func TestVocabulariesAreIndependent(t *testing.T) {
	b := NewBuilder(10)
	b.Add(VocabularyDiagnosis, "99213")
	b.AddAll(VocabularyProcedure, []string{"99213", "99213", "99213", "99213", "99213", "99213", "99213", "99213", "99213", "99213"})
	idx := b.Build()
	if !idx.IsRare(VocabularyDiagnosis, "99213") {
		t.Fatalf("expected dx vocabulary's count of 1 to be rare")
	}
	if idx.IsRare(VocabularyProcedure, "99213") {
		t.Fatalf("expected cpt vocabulary's count of 10 not to be rare despite the same code string")
	}
}

func TestAnyRare(t *testing.T) {
	b := NewBuilder(10)
	b.Add(VocabularyDrug, "00071015523")
	idx := b.Build()
	if !idx.AnyRare(VocabularyDrug, []string{"", "00071015523"}) {
		t.Fatalf("expected AnyRare to detect the rare code among the codes")
	}
}

func TestRareCountAndThreshold(t *testing.T) {
	b := NewBuilder(5)
	b.Add(VocabularyDiagnosis, "A")
	b.Add(VocabularyDiagnosis, "B")
	idx := b.Build()
	if idx.Threshold() != 5 {
		t.Fatalf("expected threshold 5, got %d", idx.Threshold())
	}
	if got := idx.RareCount(VocabularyDiagnosis); got != 2 {
		t.Fatalf("expected 2 rare dx codes, got %d", got)
	}
}

func TestDefaultThresholdAppliedForZero(t *testing.T) {
	b := NewBuilder(0)
	for i := 0; i < DefaultThreshold-1; i++ {
		b.Add(VocabularyDiagnosis, "X")
	}
	idx := b.Build()
	if !idx.IsRare(VocabularyDiagnosis, "X") {
		t.Fatalf("expected default threshold of %d to apply", DefaultThreshold)
	}
}
