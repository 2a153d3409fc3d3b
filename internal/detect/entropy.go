package detect

import (
	"fmt"
	"math"
	"strings"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// ShannonEntropy measures the randomness of the character distribution of s
// in bits per symbol. Empty input scores 0.0. Ordinary words land around 2.5
// to 3.5; machine-generated labels push past 3.5.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0.0
	}

	charCounts := make(map[rune]int)
	total := 0
	for _, char := range s {
		charCounts[char]++
		total++
	}

	var entropy float64
	for _, count := range charCounts {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// dgaEntropyThreshold is the label entropy above which a domain is scored as
// algorithmically generated.
const dgaEntropyThreshold = 3.5

// AnalyzeDomain scores a DNS name against domain-generation-algorithm
// heuristics. Entropy of the registrable label drives the verdict; long
// consonant runs, digit density and oversized labels boost the confidence,
// capped at 1.0. Returns nil for names below the entropy threshold.
func AnalyzeDomain(domain string) *pb.ThreatIndicator {
	label := registrableLabel(domain)
	if label == "" {
		return nil
	}

	entropy := ShannonEntropy(label)
	if entropy <= dgaEntropyThreshold {
		return nil
	}

	confidence := 0.5 + (entropy-dgaEntropyThreshold)*0.15
	if longestConsonantRun(label) >= 5 {
		confidence += 0.15
	}
	if digitRatio(label) > 0.2 {
		confidence += 0.15
	}
	if len(label) >= 16 {
		confidence += 0.10
	}

	return newIndicator(
		IndicatorDGA,
		domain,
		confidence,
		PhaseCommandAndControl,
		[]string{"T1568.002"},
		fmt.Sprintf("high-entropy domain label %q (entropy %.2f)", label, entropy),
	)
}

// registrableLabel isolates the label a DGA would randomize: the longest
// label once the TLD is dropped. "xkw92mha.evil.com" yields "xkw92mha".
func registrableLabel(domain string) string {
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
	if domain == "" {
		return ""
	}
	labels := strings.Split(domain, ".")
	if len(labels) > 1 {
		labels = labels[:len(labels)-1]
	}
	longest := ""
	for _, l := range labels {
		if len(l) > len(longest) {
			longest = l
		}
	}
	return longest
}

func longestConsonantRun(s string) int {
	run, longest := 0, 0
	for _, r := range s {
		if r >= 'a' && r <= 'z' && !strings.ContainsRune("aeiou", r) {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

func digitRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}
