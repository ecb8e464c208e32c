package inventory

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Claim is a count stated in documentation, such as "ships 4 commands".
type Claim struct {
	Noun    string `json:"noun"`
	Claimed int    `json:"claimed"`
	Actual  int    `json:"actual"`
	Line    int    `json:"line"`
}

// OK reports whether the claim matches the inventory.
func (c Claim) OK() bool {
	return c.Claimed == c.Actual
}

var claimPattern = regexp.MustCompile(`(?i)\b(\d+)\s+(commands?|components?)\b`)

// CheckReadmeClaims finds every "N commands" / "N components" claim in the
// file at readmePath and fills in the actual count from inv.
func CheckReadmeClaims(readmePath string, inv *Inventory) ([]Claim, error) {
	content, err := os.ReadFile(readmePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", readmePath, err)
	}
	return FindClaims(content, inv), nil
}

// FindClaims is CheckReadmeClaims over content already in memory.
func FindClaims(content []byte, inv *Inventory) []Claim {
	var claims []Claim

	scanner := bufio.NewScanner(bytes.NewReader(content))
	line := 0
	for scanner.Scan() {
		line++
		for _, m := range claimPattern.FindAllStringSubmatch(scanner.Text(), -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			noun := strings.ToLower(m[2])
			if !strings.HasSuffix(noun, "s") {
				noun += "s"
			}
			claims = append(claims, Claim{
				Noun:    noun,
				Claimed: n,
				Actual:  inv.Count(noun),
				Line:    line,
			})
		}
	}
	return claims
}

// Mismatched returns the claims that do not match.
func Mismatched(claims []Claim) []Claim {
	var out []Claim
	for _, c := range claims {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// MentionsCount reports whether content states count for noun, the way the
// README is expected to state the discovered command count.
func MentionsCount(content []byte, noun string, count int) bool {
	for _, c := range FindClaims(content, &Inventory{}) {
		if strings.TrimSuffix(c.Noun, "s") == strings.TrimSuffix(strings.ToLower(noun), "s") && c.Claimed == count {
			return true
		}
	}
	return false
}
