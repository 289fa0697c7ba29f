package classify

import "testing"

func TestClassifyHIV(t *testing.T) {
	c := Classifier{}
	if got := c.Classify("B20"); got != CategoryHIV {
		t.Fatalf("expected hiv_aids, got %q", got)
	}
	if got := c.Classify("b24.9"); got != CategoryHIV {
		t.Fatalf("expected lowercase b24.9 to classify as hiv_aids, got %q", got)
	}
}

func TestClassifySubstanceUse(t *testing.T) {
	c := Classifier{}
	if got := c.Classify("F14.2"); got != CategorySubstanceUse {
		t.Fatalf("expected substance_use, got %q", got)
	}
}

func TestClassifyAbuse(t *testing.T) {
	c := Classifier{}
	if got := c.Classify("T7601XA"); got != CategoryAbuse {
		t.Fatalf("expected abuse, got %q", got)
	}
}

func TestClassifyNewbornPrefix(t *testing.T) {
	c := Classifier{}
	if got := c.Classify("Z3800"); got != CategoryNewborn {
		t.Fatalf("expected newborn for Z38 prefix, got %q", got)
	}
}

func TestClassifyNewbornExact(t *testing.T) {
	c := Classifier{}
	if got := c.Classify("Z332"); got != CategoryNewborn {
		t.Fatalf("expected newborn for exact Z332, got %q", got)
	}
	if got := c.Classify("Z333"); got == CategoryNewborn {
		t.Fatalf("expected Z333 not to match the exact Z332 rule")
	}
}

func TestClassifyNone(t *testing.T) {
	c := Classifier{}
	if got := c.Classify("J45.909"); got != CategoryNone {
		t.Fatalf("expected no category for an unrelated asthma code, got %q", got)
	}
}

func TestClassifyEmpty(t *testing.T) {
	c := Classifier{}
	if got := c.Classify(""); got != CategoryNone {
		t.Fatalf("expected no category for empty code, got %q", got)
	}
}

func TestIsSensitiveIncludesHIV(t *testing.T) {
	c := Classifier{}
	if !c.IsSensitive("B20") {
		t.Fatalf("expected HIV codes to trigger the demographic mask")
	}
}

func TestIsSensitiveExcludesNewborn(t *testing.T) {
	c := Classifier{}
	if c.IsSensitive("Z3800") {
		t.Fatalf("expected newborn codes to be classified but not yet consumed by the mask decision")
	}
}

func TestGeneralizeRange(t *testing.T) {
	c := Classifier{}
	label, ok := c.Generalize("A53.1")
	if !ok || label != "A50-A64" {
		t.Fatalf("expected A53.1 to generalize to A50-A64, got %q ok=%v", label, ok)
	}
}

func TestGeneralizeSingleCode(t *testing.T) {
	c := Classifier{}
	for _, code := range []string{"F20", "F31", "T74", "T76", "G10", "E84"} {
		label, ok := c.Generalize(code)
		if !ok || label != code {
			t.Fatalf("expected %s to generalize to itself, got %q ok=%v", code, label, ok)
		}
	}
}

func TestGeneralizeAndAbuseOverlap(t *testing.T) {
	c := Classifier{}
	if c.Classify("T7601XA") != CategoryAbuse {
		t.Fatalf("expected T76 to classify as abuse")
	}
	label, ok := c.Generalize("T7601XA")
	if !ok || label != "T76" {
		t.Fatalf("expected T76 to also be generalizable, got %q ok=%v", label, ok)
	}
}

func TestGeneralizeNoMatch(t *testing.T) {
	c := Classifier{}
	if _, ok := c.Generalize("J45.909"); ok {
		t.Fatalf("expected no generalization for an unrelated asthma code")
	}
}
