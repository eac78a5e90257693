// Package deps checks that the external programs the extractors shell out to
// are installed: a Java runtime for tabula, Poppler for page rendering and
// layout text, and Tesseract for OCR.
package deps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var ErrToolMissing = errors.New("required tool not found on PATH")

// Runner abstracts process execution so extractors can be tested without the
// real binaries.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec runs real processes. Output is stdout; stderr is folded into the error.
type Exec struct{}

func (Exec) LookPath(name string) (string, error) { return exec.LookPath(name) }

func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	if stdout.Len() == 0 {
		return stderr.Bytes(), nil
	}
	return stdout.Bytes(), nil
}

type Tool struct {
	Name        string   `json:"name"`
	Package     string   `json:"package"`
	VersionArgs []string `json:"-"`
	Hint        string   `json:"hint"`
}

var Tools = []Tool{
	{Name: "java", Package: "Java Runtime Environment", VersionArgs: []string{"-version"},
		Hint: "apt install default-jre | brew install openjdk | choco install openjdk"},
	{Name: "pdftoppm", Package: "Poppler", VersionArgs: []string{"-v"},
		Hint: "apt install poppler-utils | brew install poppler | choco install poppler"},
	{Name: "pdftotext", Package: "Poppler", VersionArgs: []string{"-v"},
		Hint: "apt install poppler-utils | brew install poppler | choco install poppler"},
	{Name: "pdfinfo", Package: "Poppler", VersionArgs: []string{"-v"},
		Hint: "apt install poppler-utils | brew install poppler | choco install poppler"},
	{Name: "tesseract", Package: "Tesseract OCR", VersionArgs: []string{"--version"},
		Hint: "apt install tesseract-ocr | brew install tesseract | choco install tesseract"},
}

type Status struct {
	Tool
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type Report struct {
	Tools []Status `json:"tools"`
}

// Check looks every tool up on PATH and records its version banner.
func Check(ctx context.Context, r Runner) Report {
	var rep Report
	for _, t := range Tools {
		st := Status{Tool: t}
		path, err := r.LookPath(t.Name)
		if err != nil {
			st.Error = err.Error()
			rep.Tools = append(rep.Tools, st)
			continue
		}
		st.Path = path
		st.Available = true
		vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		out, err := r.Run(vctx, path, t.VersionArgs...)
		cancel()
		if err != nil {
			st.Error = err.Error()
		}
		st.Version = firstLine(out)
		rep.Tools = append(rep.Tools, st)
	}
	return rep
}

func (r Report) Has(name string) bool {
	for _, s := range r.Tools {
		if s.Name == name {
			return s.Available
		}
	}
	return false
}

func (r Report) Missing() []string {
	var out []string
	for _, s := range r.Tools {
		if !s.Available {
			out = append(out, s.Name)
		}
	}
	return out
}

// Require returns ErrToolMissing naming every absent tool among names.
func Require(r Report, names ...string) error {
	var missing []string
	for _, n := range names {
		if !r.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrToolMissing, strings.Join(missing, ", "))
	}
	return nil
}

func firstLine(b []byte) string {
	for _, l := range strings.Split(string(b), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}
