// nhtest runs the Markdown golden test files of the compiler in parallel and
// writes a JSON report. Files whose content hash matches a passing entry of
// the previous report are not rerun with --cached.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/nhla/pkg/golden"
)

type CaseResult struct {
	Name     string   `json:"name"`
	Failures []string `json:"failures,omitempty"`
}

type FileTestResult struct {
	File     string        `json:"file"`
	Hash     string        `json:"hash"`
	Status   string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
	Cached   bool          `json:"cached,omitempty"`
	Cases    []CaseResult  `json:"cases,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	testFiles  = flag.String("test-files", "pkg/golden/testdata/*.md", "Glob pattern(s) for files to test (space-separated).")
	skipFiles  = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON = flag.String("output", ".nhtest_results.json", "Output file for the JSON test report.")
	jobs       = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose    = flag.Bool("v", false, "List every test case, not only failures.")
	useCache   = flag.Bool("cached", false, "Reuse passing results of unchanged files.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)
	if *jobs < 1 {
		*jobs = 1
	}

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	previous := make(TestSuiteResults)
	if *useCache {
		if data, err := os.ReadFile(*outputJSON); err == nil {
			if json.Unmarshal(data, &previous) != nil {
				log.Printf("%s[WARN]%s Could not parse %s. Cache will not be used.\n", cYellow, cNone, *outputJSON)
				previous = make(TestSuiteResults)
			}
		}
	}

	results := runAll(files, previous)
	printSummary(os.Stdout, results)
	if err := writeJSONReport(results); err != nil {
		log.Printf("%s[WARN]%s Could not write report: %v\n", cYellow, cNone, err)
	}
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			os.Exit(1)
		}
	}
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

type task struct {
	file string
	hash string
}

func runAll(files []string, previous TestSuiteResults) []*FileTestResult {
	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup
	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(t.file, t.hash)
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		hash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if original, seen := seenHashes[hash]; seen {
			resultsChan <- &FileTestResult{File: file, Hash: hash, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[hash] = file
		if prev, ok := previous[file]; ok && prev.Hash == hash && prev.Status == "PASS" {
			cached := *prev
			cached.Cached = true
			resultsChan <- &cached
			continue
		}
		tasks <- task{file: file, hash: hash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var all []*FileTestResult
	for r := range resultsChan {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })
	return all
}

func testFile(file, hash string) *FileTestResult {
	start := time.Now()
	res := &FileTestResult{File: file, Hash: hash}
	content, err := os.ReadFile(file)
	if err != nil {
		res.Status, res.Message = "ERROR", err.Error()
		return res
	}
	caseResults, err := golden.RunFile(content)
	res.Duration = time.Since(start)
	if err != nil {
		res.Status, res.Message = "ERROR", err.Error()
		return res
	}

	res.Status = "PASS"
	for _, c := range caseResults {
		res.Cases = append(res.Cases, CaseResult{Name: c.Name, Failures: c.Failures})
		if len(c.Failures) > 0 {
			res.Status = "FAIL"
		}
	}
	if len(res.Cases) == 0 {
		res.Status, res.Message = "SKIP", "No test cases"
	}
	return res
}

func printSummary(w io.Writer, results []*FileTestResult) {
	counts := make(map[string]int)
	cases, failed := 0, 0
	for _, r := range results {
		counts[r.Status]++
		color := cGreen
		switch r.Status {
		case "FAIL", "ERROR":
			color = cRed
		case "SKIP":
			color = cYellow
		}
		note := ""
		if r.Cached {
			note = " (cached)"
		}
		fmt.Fprintf(w, "%s[%s]%s %s%s %s%s\n", color, r.Status, cNone, r.File, note, cCyan, r.Duration.Round(time.Microsecond))
		fmt.Fprint(w, cNone)
		if r.Message != "" {
			fmt.Fprintf(w, "    %s\n", r.Message)
		}
		for _, c := range r.Cases {
			cases++
			if len(c.Failures) == 0 {
				if *verbose {
					fmt.Fprintf(w, "    %sok%s   %s\n", cGreen, cNone, c.Name)
				}
				continue
			}
			failed++
			fmt.Fprintf(w, "    %sFAIL%s %s\n", cRed, cNone, c.Name)
			for _, f := range c.Failures {
				fmt.Fprintf(w, "        %s\n", strings.ReplaceAll(f, "\n", "\n        "))
			}
		}
	}
	fmt.Fprintf(w, "\n%s%d file(s): %d passed, %d failed, %d skipped, %d errors; %d case(s), %d failed%s\n",
		cBold, len(results), counts["PASS"], counts["FAIL"], counts["SKIP"], counts["ERROR"], cases, failed, cNone)
}

func writeJSONReport(results []*FileTestResult) error {
	report := make(TestSuiteResults, len(results))
	for _, r := range results {
		report[r.File] = r
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(*outputJSON, data, 0o644)
}

func expandGlobPatterns(patterns string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range strings.Fields(patterns) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
