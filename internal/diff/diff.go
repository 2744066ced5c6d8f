// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType
	Content string
	OldNum  int // 1-based, 0 for additions
	NewNum  int // 1-based, 0 for deletions
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

func (t LineType) prefix() string {
	switch t {
	case Addition:
		return "+"
	case Deletion:
		return "-"
	default:
		return " "
	}
}

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Empty reports identical inputs.
func (r *DiffResult) Empty() bool {
	return len(r.Hunks) == 0
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// maxCells bounds the LCS table; larger inputs are diffed as a whole
// replacement.
const maxCells = 16 << 20

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{
		contextLines: contextLines,
	}
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) (*DiffResult, error) {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	var script []Line
	if len(oldLines)*len(newLines) > maxCells {
		script = replaceScript(oldLines, newLines)
	} else {
		script = editScript(oldLines, newLines)
	}

	result := &DiffResult{Hunks: e.group(script)}
	for _, line := range script {
		switch line.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions
	return result, nil
}

// group cuts the edit script into hunks, keeping contextLines of unchanged
// lines around each change and merging changes whose context overlaps.
func (e *Engine) group(script []Line) []Hunk {
	// oldPos[k] and newPos[k] count the lines consumed before script[k]
	oldPos := make([]int, len(script)+1)
	newPos := make([]int, len(script)+1)
	for k, line := range script {
		oldPos[k+1], newPos[k+1] = oldPos[k], newPos[k]
		if line.Type != Addition {
			oldPos[k+1]++
		}
		if line.Type != Deletion {
			newPos[k+1]++
		}
	}

	var hunks []Hunk
	i := 0
	for i < len(script) {
		if script[i].Type == Context {
			i++
			continue
		}

		start := max(0, i-e.contextLines)
		end := i
		for end < len(script) {
			if script[end].Type != Context {
				end++
				continue
			}
			// run of context: does another change follow close enough?
			run := end
			for run < len(script) && script[run].Type == Context {
				run++
			}
			if run < len(script) && run-end <= 2*e.contextLines {
				end = run
				continue
			}
			end = min(len(script), end+e.contextLines)
			break
		}

		h := Hunk{
			OldStart: oldPos[start],
			OldLines: oldPos[end] - oldPos[start],
			NewStart: newPos[start],
			NewLines: newPos[end] - newPos[start],
			Lines:    append([]Line(nil), script[start:end]...),
		}
		// an empty side is addressed by the line it follows
		if h.OldLines > 0 {
			h.OldStart++
		}
		if h.NewLines > 0 {
			h.NewStart++
		}
		hunks = append(hunks, h)
		i = end
	}
	return hunks
}

// Format returns a string representation of the diff
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			buf.WriteString(line.Type.prefix())
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
