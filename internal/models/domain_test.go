package models

import "testing"

func TestNormalizeCaptionText(t *testing.T) {
	got, err := NormalizeCaptionText("  a   black\tcat ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "a black cat" {
		t.Fatalf("expected collapsed text, got %q", got)
	}

	if _, err := NormalizeCaptionText("   "); err == nil {
		t.Fatal("expected empty caption error")
	}
}

func TestNormalizeTags(t *testing.T) {
	got, err := NormalizeTags([]string{" Outdoor", "outdoor", "", "NIGHT"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 2 || got[0] != "outdoor" || got[1] != "night" {
		t.Fatalf("unexpected tags: %v", got)
	}

	if _, err := NormalizeTags([]string{"a,b"}); err == nil {
		t.Fatal("expected invalid tag error")
	}
}

func TestNormalizeCategoryName(t *testing.T) {
	if _, err := NormalizeCategoryName(""); err == nil {
		t.Fatal("expected required error")
	}
	got, err := NormalizeCategoryName(" animal ")
	if err != nil || got != "animal" {
		t.Fatalf("expected animal, got %q err=%v", got, err)
	}
}
