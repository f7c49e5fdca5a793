package diff

import "strings"

// LineChanges counts added and deleted lines in a diff.
// returns: addedLines, deletedLines, totalLines
func LineChanges(diffContent string) (int, int, int) {
	addedLines := 0
	deletedLines := 0
	for _, line := range strings.Split(diffContent, "\n") {
		if strings.HasPrefix(line, "+ ") {
			addedLines++
		}
		if strings.HasPrefix(line, "- ") {
			deletedLines++
		}
	}
	return addedLines, deletedLines, addedLines + deletedLines
}
