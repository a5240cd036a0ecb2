package quantity

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantCount  int
		wantMethod Method
		wantCapped bool
	}{
		// Plain digits
		{
			name:       "bare digits",
			text:       "5",
			wantCount:  5,
			wantMethod: MethodDigits,
		},
		{
			name:       "digits in sentence",
			text:       "give me 12 songs please",
			wantCount:  12,
			wantMethod: MethodDigits,
		},
		{
			name:       "scattered digits are summed",
			text:       "7 songs now then 3 more later",
			wantCount:  10,
			wantMethod: MethodArithmetic,
		},

		// Spelled-out numbers
		{
			name:       "single word",
			text:       "download twenty songs",
			wantCount:  20,
			wantMethod: MethodWord,
		},
		{
			name:       "upper bound word",
			text:       "fifty tracks",
			wantCount:  50,
			wantMethod: MethodWord,
		},
		{
			name:       "compound with space",
			text:       "twenty five songs",
			wantCount:  25,
			wantMethod: MethodWord,
		},
		{
			name:       "compound with hyphen",
			text:       "twenty-five songs",
			wantCount:  25,
			wantMethod: MethodWord,
		},
		{
			name:       "teen word",
			text:       "about fifteen of them",
			wantCount:  15,
			wantMethod: MethodWord,
		},
		{
			name:       "mixed case word",
			text:       "Twenty please",
			wantCount:  20,
			wantMethod: MethodWord,
		},

		// Arithmetic
		{
			name:       "plus sign",
			text:       "5+5",
			wantCount:  10,
			wantMethod: MethodArithmetic,
		},
		{
			name:       "plus word",
			text:       "get me 5 plus 5 songs",
			wantCount:  10,
			wantMethod: MethodArithmetic,
		},
		{
			name:       "and connector",
			text:       "5 and 5",
			wantCount:  10,
			wantMethod: MethodArithmetic,
		},
		{
			name:       "word operands",
			text:       "five plus five",
			wantCount:  10,
			wantMethod: MethodArithmetic,
		},
		{
			name:       "digit and word operands",
			text:       "5 plus five",
			wantCount:  10,
			wantMethod: MethodMixed,
		},
		{
			name:       "word and digit operands",
			text:       "twenty and 5",
			wantCount:  25,
			wantMethod: MethodMixed,
		},

		// Ceiling
		{
			name:       "above ceiling",
			text:       "download 9999 songs",
			wantCount:  ClaimCeiling,
			wantMethod: MethodDigits,
			wantCapped: true,
		},
		{
			name:       "exactly at ceiling",
			text:       "250 songs",
			wantCount:  ClaimCeiling,
			wantMethod: MethodDigits,
		},
		{
			name:       "arithmetic above ceiling",
			text:       "200 plus 200",
			wantCount:  ClaimCeiling,
			wantMethod: MethodArithmetic,
			wantCapped: true,
		},
		{
			name:       "overflowing digit run",
			text:       "99999999999999999999 songs",
			wantCount:  ClaimCeiling,
			wantMethod: MethodDigits,
			wantCapped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claim, ok := Parse(tt.text)
			if !ok {
				t.Fatalf("Parse(%q) found no claim", tt.text)
			}
			if claim.Count != tt.wantCount {
				t.Errorf("Parse(%q) count = %d, want %d", tt.text, claim.Count, tt.wantCount)
			}
			if claim.Method != tt.wantMethod {
				t.Errorf("Parse(%q) method = %q, want %q", tt.text, claim.Method, tt.wantMethod)
			}
			if claim.Capped != tt.wantCapped {
				t.Errorf("Parse(%q) capped = %v, want %v", tt.text, claim.Capped, tt.wantCapped)
			}
		})
	}
}

func TestParseNoSignal(t *testing.T) {
	for _, text := range []string{
		"",
		"play something upbeat",
		"rock and roll classics",
		"songs by the band",
	} {
		if claim, ok := Parse(text); ok {
			t.Errorf("Parse(%q) = %+v, want no claim", text, claim)
		}
	}
}

func TestParseRawText(t *testing.T) {
	claim, ok := Parse("I want 5 plus five of those")
	if !ok {
		t.Fatal("expected a claim")
	}
	if claim.RawText != "5 plus five" {
		t.Errorf("raw text = %q, want %q", claim.RawText, "5 plus five")
	}

	claim, ok = Parse("queue up twenty five hits")
	if !ok {
		t.Fatal("expected a claim")
	}
	if claim.RawText != "twenty five" {
		t.Errorf("raw text = %q, want %q", claim.RawText, "twenty five")
	}
}
