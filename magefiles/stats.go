//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/magefile/mage/sh"
)

// pkgStats is the size of one Go package.
type pkgStats struct {
	path       string
	prod, test int
	tests      int
	benchmarks int
}

// listFormat makes go list print one package per line:
// import path, directory, source files, test files.
const listFormat = `{{.ImportPath}}|{{.Dir}}|{{join .GoFiles ","}}|{{join .TestGoFiles ","}}`

// Stats prints lines of code, test functions, and benchmarks per package.
func Stats() error {
	out, err := sh.Output(binGo, "list", "-f", listFormat, "./pkg/...", "./internal/...", "./cmd/...")
	if err != nil {
		return err
	}
	module, err := sh.Output(binGo, "list", "-m")
	if err != nil {
		return err
	}

	var all []pkgStats
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) != 4 {
			continue
		}
		s := pkgStats{path: strings.TrimPrefix(fields[0], module+"/")}
		for _, name := range splitList(fields[2]) {
			n, _, _ := scanGoFile(filepath.Join(fields[1], name))
			s.prod += n
		}
		for _, name := range splitList(fields[3]) {
			n, tests, benchmarks := scanGoFile(filepath.Join(fields[1], name))
			s.test += n
			s.tests += tests
			s.benchmarks += benchmarks
		}
		all = append(all, s)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "package\tprod\ttest\tTest*\tBenchmark*\t")
	var total pkgStats
	for _, s := range all {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t\n", s.path, s.prod, s.test, s.tests, s.benchmarks)
		total.prod += s.prod
		total.test += s.test
		total.tests += s.tests
		total.benchmarks += s.benchmarks
	}
	fmt.Fprintf(w, "total\t%d\t%d\t%d\t%d\t\n", total.prod, total.test, total.tests, total.benchmarks)
	return w.Flush()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// scanGoFile counts the lines of a Go file and its top-level Test and
// Benchmark functions. Unreadable files count as empty.
func scanGoFile(path string) (lines, tests, benchmarks int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		text := scanner.Text()
		switch {
		case strings.HasPrefix(text, "func Test"):
			tests++
		case strings.HasPrefix(text, "func Benchmark"):
			benchmarks++
		}
	}
	return lines, tests, benchmarks
}
