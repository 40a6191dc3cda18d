// Package ops implements the retrieval operations: byte-accurate content
// reads, regex grep, chunking, structure rendering, symbol lookups, and the
// annotation sidecar. Every operation works against a project's file tree
// and symbol table; none of them mutate indexed files.
package ops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"codescope/internal/errors"
	"codescope/internal/index"
	"codescope/internal/paths"
)

// binaryProbeSize is how many leading bytes grep inspects for a NUL byte.
const binaryProbeSize = 8 * 1024

// ctxErr maps a context failure to the stable taxonomy.
func ctxErr(ctx context.Context) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.New(errors.Timeout, "operation deadline expired")
	case context.Canceled:
		return errors.New(errors.Cancelled, "operation cancelled")
	}
	return nil
}

// splitLines splits file contents on line boundaries the way peek and
// implementation count them: a trailing newline does not open a final
// empty line.
func splitLines(data []byte) []string {
	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func readIndexed(root string, tree *index.FileTree, file string) ([]byte, error) {
	if _, ok := tree.Get(file); !ok {
		return nil, errors.New(errors.NotFound, "file %q not found in index", file)
	}
	data, err := os.ReadFile(paths.Join(root, file))
	if err != nil {
		return nil, errors.Wrap(errors.IO, err, "reading %q", file)
	}
	return data, nil
}

// PeekResult is a line-numbered slice of one file.
type PeekResult struct {
	File       string `json:"file"`
	StartLine  int    `json:"startLine"` // 1-indexed first returned line
	EndLine    int    `json:"endLine"`   // 1-indexed last returned line
	TotalLines int    `json:"totalLines"`
	Content    string `json:"content"`
}

// Peek returns lines [start, end) of a file, 0-indexed with an exclusive
// end. end is clipped to the line count; start > end or start > total is a
// BAD_ARGUMENT. Each returned line carries an aligned 1-indexed number so
// callers can surface it verbatim.
func Peek(root string, tree *index.FileTree, file string, start, end int) (*PeekResult, error) {
	if start < 0 || end < 0 {
		return nil, errors.New(errors.BadArgument, "negative line bounds [%d, %d)", start, end)
	}
	if start > end {
		return nil, errors.New(errors.BadArgument, "bad range: start %d > end %d", start, end)
	}

	data, err := readIndexed(root, tree, file)
	if err != nil {
		return nil, err
	}

	lines := splitLines(data)
	total := len(lines)
	if start > total {
		return nil, errors.New(errors.BadArgument, "bad range: start %d beyond %d lines", start, total)
	}
	if end > total {
		end = total
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d │ %s", i+1, lines[i])
		if i < end-1 {
			b.WriteByte('\n')
		}
	}

	return &PeekResult{
		File:       file,
		StartLine:  start + 1,
		EndLine:    end,
		TotalLines: total,
		Content:    b.String(),
	}, nil
}

// RawLines returns lines [start, end) of a file without number prefixes,
// clipped the same way Peek clips. Implementation lookup is built on it.
func RawLines(root string, tree *index.FileTree, file string, start, end int) (string, error) {
	data, err := readIndexed(root, tree, file)
	if err != nil {
		return "", err
	}
	lines := splitLines(data)
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return "", nil
	}
	return strings.Join(lines[start:end], "\n"), nil
}

// GrepMatch is one regex hit with its surrounding context.
type GrepMatch struct {
	File          string   `json:"file"`
	Line          int      `json:"line"` // 1-indexed
	Text          string   `json:"text"`
	ContextBefore []string `json:"contextBefore,omitempty"`
	ContextAfter  []string `json:"contextAfter,omitempty"`
}

// GrepResult is the outcome of a project-wide regex search.
type GrepResult struct {
	Pattern      string      `json:"pattern"`
	Matches      []GrepMatch `json:"matches"`
	TotalMatches int         `json:"totalMatches"`
	Truncated    bool        `json:"truncated"`
}

// Grep compiles pattern and scans every indexed file within the size limit,
// skipping binaries (NUL byte in the first 8 KiB). Matching stops recording
// at maxMatches but keeps counting, so Truncated is exact. Files are
// visited in ascending path order; cancellation is honoured between files.
func Grep(ctx context.Context, root string, tree *index.FileTree, pattern string, maxMatches, contextLines int, maxFileSize int64) (*GrepResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(errors.BadPattern, err, "invalid regex %q", pattern)
	}
	if maxMatches <= 0 {
		return nil, errors.New(errors.BadArgument, "maxMatches must be positive, got %d", maxMatches)
	}
	if contextLines < 0 {
		return nil, errors.New(errors.BadArgument, "contextLines must not be negative, got %d", contextLines)
	}

	result := &GrepResult{Pattern: pattern, Matches: []GrepMatch{}}

	for _, entry := range tree.Entries() {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		if entry.Size > maxFileSize {
			continue
		}

		data, err := os.ReadFile(paths.Join(root, entry.RelPath))
		if err != nil {
			continue
		}
		probe := data
		if len(probe) > binaryProbeSize {
			probe = probe[:binaryProbeSize]
		}
		if bytes.IndexByte(probe, 0) >= 0 {
			continue
		}

		lines := splitLines(data)
		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			result.TotalMatches++
			if len(result.Matches) >= maxMatches {
				continue
			}

			ctxStart := i - contextLines
			if ctxStart < 0 {
				ctxStart = 0
			}
			ctxEnd := i + contextLines + 1
			if ctxEnd > len(lines) {
				ctxEnd = len(lines)
			}

			match := GrepMatch{
				File: entry.RelPath,
				Line: i + 1,
				Text: line,
			}
			if ctxStart < i {
				match.ContextBefore = append([]string(nil), lines[ctxStart:i]...)
			}
			if i+1 < ctxEnd {
				match.ContextAfter = append([]string(nil), lines[i+1:ctxEnd]...)
			}
			result.Matches = append(result.Matches, match)
		}
	}

	result.Truncated = result.TotalMatches > maxMatches
	return result, nil
}

// Chunk is one byte window of a file.
type Chunk struct {
	Index int `json:"index"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChunkResult lists the byte windows covering a file.
type ChunkResult struct {
	File       string  `json:"file"`
	TotalBytes int     `json:"totalBytes"`
	ChunkSize  int     `json:"chunkSize"`
	Overlap    int     `json:"overlap"`
	Chunks     []Chunk `json:"chunks"`
}

// ChunkIndices computes overlapping byte ranges covering the whole file.
// overlap must be non-negative and strictly below size.
func ChunkIndices(root string, tree *index.FileTree, file string, size, overlap int) (*ChunkResult, error) {
	if size <= 0 {
		return nil, errors.New(errors.BadChunking, "chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, errors.New(errors.BadChunking, "overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, errors.New(errors.BadChunking, "overlap %d must be below chunk size %d", overlap, size)
	}

	data, err := readIndexed(root, tree, file)
	if err != nil {
		return nil, err
	}

	total := len(data)
	step := size - overlap
	result := &ChunkResult{
		File:       file,
		TotalBytes: total,
		ChunkSize:  size,
		Overlap:    overlap,
		Chunks:     []Chunk{},
	}

	for start, idx := 0, 0; start < total; start, idx = start+step, idx+1 {
		end := start + size
		if end > total {
			end = total
		}
		result.Chunks = append(result.Chunks, Chunk{Index: idx, Start: start, End: end})
		if end >= total {
			break
		}
	}
	return result, nil
}
