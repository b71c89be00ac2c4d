package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

// FS holds the built-in drafting instructions.
var FS fs.FS = templateFS

var instructionTagRegex = regexp.MustCompile(`(?i)</?\s*system-instructions?\b[^>]*>`)

const maxNameRunes = 200

// Tone selects a drafting instruction variant.
type Tone string

const (
	// ToneWarm is the default appreciative tone.
	ToneWarm Tone = "warm"
	// ToneFormal uses an academic register.
	ToneFormal Tone = "formal"
	// ToneConcise asks for one-sentence comments.
	ToneConcise Tone = "concise"
)

var validTones = map[Tone]bool{
	ToneWarm:    true,
	ToneFormal:  true,
	ToneConcise: true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Tone]*template.Template
)

// IsValidTone checks if a tone name is valid.
func IsValidTone(t string) bool {
	return validTones[Tone(t)]
}

// DraftingData holds template data for drafting instructions.
type DraftingData struct {
	StudentName string
	TeacherName string
	Subject     string
}

// Load parses the drafting templates from fsys.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Tone]*template.Template)
		for _, t := range []Tone{ToneWarm, ToneFormal, ToneConcise} {
			file := "templates/drafting_" + string(t) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(t)).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			templates[t] = tmpl
		}
	})
	return loadErr
}

// BuildDraftingPrompt renders the system instruction for a drafting session.
func BuildDraftingPrompt(tone Tone, data DraftingData) (string, error) {
	if templates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[tone]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid tone: " + string(tone))
	}

	data.StudentName = sanitizeName(data.StudentName)
	data.TeacherName = sanitizeName(data.TeacherName)
	data.Subject = sanitizeName(data.Subject)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeName strips instruction markup and line breaks from backend-supplied
// names so they stay inline in the instruction.
func sanitizeName(s string) string {
	s = instructionTagRegex.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxNameRunes {
		s = string([]rune(s)[:maxNameRunes])
	}
	return s
}
