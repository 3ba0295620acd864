package parser

import (
	"fmt"
	"regexp"
)

// ExtractGroups extracts all submatch groups from text
func ExtractGroups(data []byte, pattern string) ([][]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern: %w", err)
	}

	matches := re.FindAllStringSubmatch(string(data), -1)
	return matches, nil
}
