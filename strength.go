package main

import "strings"

// Strength buckets, weakest first.
const (
	StrengthVeryWeak   = "very-weak"
	StrengthWeak       = "weak"
	StrengthMedium     = "medium"
	StrengthStrong     = "strong"
	StrengthVeryStrong = "very-strong"
)

// DefaultMinPasswordScore is the recommended acceptance threshold for
// registration. It is policy, not evaluator behavior: callers decide whether
// and where to enforce it.
const DefaultMinPasswordScore = 3

const passwordSymbols = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

var commonSequences = []string{"123", "abc", "qwe", "asdf", "password", "letmein"}

// StrengthResult is the outcome of evaluating a candidate password.
type StrengthResult struct {
	Score    int      `json:"score"`
	Strength string   `json:"strength"`
	Feedback []string `json:"feedback"`
}

// EvaluateStrength scores a password against additive heuristics. The score
// never goes below zero; feedback lists the concrete improvements that would
// raise it.
func EvaluateStrength(password string) StrengthResult {
	if password == "" {
		return StrengthResult{
			Score:    0,
			Strength: StrengthVeryWeak,
			Feedback: []string{"Password is required"},
		}
	}

	score := 0
	var feedback []string

	switch {
	case len(password) >= 16:
		score += 3
	case len(password) >= 12:
		score += 2
	case len(password) >= 8:
		score++
	default:
		feedback = append(feedback, "Use at least 8 characters")
	}

	if strings.ContainsFunc(password, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		score++
	} else {
		feedback = append(feedback, "Add lowercase letters")
	}
	if strings.ContainsFunc(password, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		score++
	} else {
		feedback = append(feedback, "Add uppercase letters")
	}
	if strings.ContainsFunc(password, func(r rune) bool { return r >= '0' && r <= '9' }) {
		score++
	} else {
		feedback = append(feedback, "Add digits")
	}
	if strings.ContainsAny(password, passwordSymbols) {
		score++
	} else {
		feedback = append(feedback, "Add symbols")
	}

	if hasRepeatedRun(password, 3) {
		score--
		feedback = append(feedback, "Avoid repeated characters")
	}
	if containsCommonSequence(password) {
		score--
		feedback = append(feedback, "Avoid common sequences")
	}

	if score < 0 {
		score = 0
	}

	return StrengthResult{Score: score, Strength: bucketStrength(score), Feedback: feedback}
}

func bucketStrength(score int) string {
	switch {
	case score <= 2:
		return StrengthWeak
	case score <= 4:
		return StrengthMedium
	case score <= 5:
		return StrengthStrong
	default:
		return StrengthVeryStrong
	}
}

func hasRepeatedRun(s string, n int) bool {
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func containsCommonSequence(s string) bool {
	lower := strings.ToLower(s)
	for _, seq := range commonSequences {
		if strings.Contains(lower, seq) {
			return true
		}
	}
	return false
}
