package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

// Source is what a document source declares about itself.
type Source struct {
	Orientation string
	Libraries   []string
}

type frontMatter struct {
	Orientation string `yaml:"orientation"`
}

// ScanSource reads the optional YAML front matter of an R Markdown source and
// the packages it loads with library(pkg) calls.
func ScanSource(r io.Reader) (Source, error) {
	var src Source
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	inHeader := false
	var header strings.Builder
	seen := map[string]bool{}

	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if strings.TrimSpace(line) == frontMatterDelimiter {
				inHeader = true
				continue
			}
		}
		if inHeader {
			if strings.TrimSpace(line) == frontMatterDelimiter {
				inHeader = false
				var fm frontMatter
				if err := yaml.Unmarshal([]byte(header.String()), &fm); err != nil {
					return Source{}, fmt.Errorf("parse front matter: %w", err)
				}
				src.Orientation = fm.Orientation
				continue
			}
			header.WriteString(line)
			header.WriteByte('\n')
			continue
		}
		if lib, ok := libraryCall(line); ok && !seen[lib] {
			seen[lib] = true
			src.Libraries = append(src.Libraries, lib)
		}
	}
	if err := sc.Err(); err != nil {
		return Source{}, fmt.Errorf("read source: %w", err)
	}
	if inHeader {
		return Source{}, fmt.Errorf("parse front matter: missing closing %q", frontMatterDelimiter)
	}
	return src, nil
}

// libraryCall matches a line consisting of a single library(pkg) call.
func libraryCall(line string) (string, bool) {
	line = strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(line, "library(")
	if !ok {
		return "", false
	}
	if strings.IndexByte(rest, ')') != len(rest)-1 {
		return "", false
	}
	lib := strings.TrimSpace(strings.TrimSuffix(rest, ")"))
	if lib == "" {
		return "", false
	}
	return lib, true
}
