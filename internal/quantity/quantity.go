// Package quantity recovers a requested song count from free-form text.
package quantity

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Method identifies how a count was derived from the text.
type Method string

const (
	MethodDigits     Method = "digits"
	MethodWord       Method = "word"
	MethodArithmetic Method = "arithmetic"
	MethodMixed      Method = "mixed"
)

// ClaimCeiling is the sanity cap on any parsed quantity. It guards against
// absurd requests ("download 99999 songs") and is unrelated to the per-batch
// download limit, which is enforced downstream.
const ClaimCeiling = 250

// Claim is a quantity recovered from free text.
type Claim struct {
	RawText string
	Count   int
	Method  Method
	Capped  bool
}

// additionPattern matches two operands joined by an addition connector.
// Operands are digit runs or single number words, optionally hyphenated
// ("5+5", "5 plus five", "twenty and five").
var additionPattern = regexp.MustCompile(`(?i)\b(\d+|[a-z]+(?:-[a-z]+)?)\s*(?:\+|plus|and)\s*(\d+|[a-z]+(?:-[a-z]+)?)\b`)

// digitRuns matches standalone digit sequences.
var digitRuns = regexp.MustCompile(`\d+`)

// wordTokens splits text into lowercase alphabetic tokens for number-word scanning.
var wordTokens = regexp.MustCompile(`[a-z]+`)

var unitWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
}

var teenWords = map[string]int{
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensWords = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// Parse scans text for a song-count claim. The second return is false when
// the text carries no numeric signal at all; that is not an error.
//
// Recognized forms, tried in order: addition of two operands joined by "+",
// "plus" or "and" (operands resolved independently, so "5 plus five" is 10);
// digit runs (multiple runs are summed); spelled-out numbers through the
// tens including compounds ("twenty five", "twenty-five"). Counts above
// ClaimCeiling report the ceiling with Capped set.
func Parse(text string) (Claim, bool) {
	for _, m := range additionPattern.FindAllStringSubmatch(text, -1) {
		left, leftMethod, ok := resolveOperand(m[1])
		if !ok {
			continue
		}
		right, rightMethod, ok := resolveOperand(m[2])
		if !ok {
			continue
		}
		method := MethodArithmetic
		if leftMethod != rightMethod {
			method = MethodMixed
		}
		return clamp(Claim{
			RawText: strings.TrimSpace(m[0]),
			Count:   addBounded(left, right),
			Method:  method,
		}), true
	}

	if runs := digitRuns.FindAllString(text, -1); len(runs) > 0 {
		sum := 0
		for _, run := range runs {
			sum = addBounded(sum, parseDigitRun(run))
		}
		claim := Claim{RawText: runs[0], Count: sum, Method: MethodDigits}
		if len(runs) > 1 {
			claim.RawText = strings.Join(runs, " + ")
			claim.Method = MethodArithmetic
		}
		return clamp(claim), true
	}

	if value, raw, ok := scanWordNumber(text); ok {
		return clamp(Claim{RawText: raw, Count: value, Method: MethodWord}), true
	}

	return Claim{}, false
}

// resolveOperand resolves a single addition operand. Digit runs win over
// word lookup so "5" never reads as a word.
func resolveOperand(tok string) (int, Method, bool) {
	tok = strings.ToLower(strings.TrimSpace(tok))
	if tok == "" {
		return 0, "", false
	}
	if tok[0] >= '0' && tok[0] <= '9' {
		return parseDigitRun(tok), MethodDigits, true
	}
	if n, ok := wordValue(strings.ReplaceAll(tok, "-", " ")); ok {
		return n, MethodWord, true
	}
	return 0, "", false
}

// parseDigitRun converts a digit sequence, treating out-of-range values as
// beyond the ceiling rather than failing.
func parseDigitRun(run string) int {
	n, err := strconv.Atoi(run)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return ClaimCeiling + 1
		}
		return 0
	}
	return n
}

// addBounded sums two counts without risking overflow; anything past the
// ceiling is indistinguishable anyway.
func addBounded(a, b int) int {
	if a > ClaimCeiling {
		a = ClaimCeiling + 1
	}
	if b > ClaimCeiling {
		b = ClaimCeiling + 1
	}
	return a + b
}

// scanWordNumber finds the first spelled-out number in the text, joining a
// tens word with a following unit word ("twenty five").
func scanWordNumber(text string) (value int, raw string, ok bool) {
	tokens := wordTokens.FindAllString(strings.ToLower(text), -1)
	for i, tok := range tokens {
		if tens, isTens := tensWords[tok]; isTens {
			if i+1 < len(tokens) {
				if unit, isUnit := unitWords[tokens[i+1]]; isUnit && unit > 0 {
					return tens + unit, tok + " " + tokens[i+1], true
				}
			}
			return tens, tok, true
		}
		if teen, isTeen := teenWords[tok]; isTeen {
			return teen, tok, true
		}
		if unit, isUnit := unitWords[tok]; isUnit {
			return unit, tok, true
		}
	}
	return 0, "", false
}

// wordValue resolves a one- or two-word number phrase.
func wordValue(phrase string) (int, bool) {
	fields := strings.Fields(phrase)
	switch len(fields) {
	case 1:
		if n, ok := unitWords[fields[0]]; ok {
			return n, true
		}
		if n, ok := teenWords[fields[0]]; ok {
			return n, true
		}
		if n, ok := tensWords[fields[0]]; ok {
			return n, true
		}
	case 2:
		tens, okTens := tensWords[fields[0]]
		unit, okUnit := unitWords[fields[1]]
		if okTens && okUnit && unit > 0 {
			return tens + unit, true
		}
	}
	return 0, false
}

func clamp(c Claim) Claim {
	if c.Count > ClaimCeiling {
		c.Count = ClaimCeiling
		c.Capped = true
	}
	return c
}
