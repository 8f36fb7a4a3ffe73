// SPDX-License-Identifier: MIT

// Package fontsel resolves a font file that can actually render the subtitle
// text. Candidates are tried in order (explicit path, configured fallbacks,
// platform defaults, universal fallbacks) and each one must both exist and
// carry glyphs for a CJK probe string before it is accepted.
package fontsel

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/image/font/sfnt"

	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
)

// ProbeText is the default render check: a font that cannot shape these
// characters is useless for CJK subtitles.
const ProbeText = "测试中文字幕"

// Resolver finds and validates subtitle fonts. The zero values of the
// exported fields select platform behavior; tests override them.
type Resolver struct {
	// SearchDirs overrides the platform font directories.
	SearchDirs []string
	// ProbeText overrides the render-check sample.
	ProbeText string

	logger zerolog.Logger
	goos   string

	once  sync.Once
	index map[string]string
}

// NewResolver returns a resolver scanning the current platform's font
// directories.
func NewResolver() *Resolver {
	return &Resolver{
		logger: log.WithComponent("fontsel"),
		goos:   runtime.GOOS,
	}
}

// Resolve returns the path of the first usable font, trying the explicit
// path, then the configured fallbacks, then the platform defaults. Entries
// may be file paths or family names; family names are matched against the
// font index case-insensitively. Fails with a no-usable-font error when every
// tier is exhausted.
func (r *Resolver) Resolve(explicit string, fallbacks []string) (string, error) {
	probe := r.ProbeText
	if probe == "" {
		probe = ProbeText
	}

	var candidates []string
	if explicit != "" {
		candidates = append(candidates, explicit)
	}
	candidates = append(candidates, fallbacks...)
	candidates = append(candidates, defaultFamilies(r.goos)...)

	for _, spec := range candidates {
		path := r.locate(spec)
		if path == "" {
			r.logger.Debug().Str("font", spec).Msg("font not found")
			continue
		}
		if !CanRenderText(path, probe) {
			r.logger.Warn().
				Str("font", spec).
				Str("path", path).
				Msg("font cannot render subtitle text, skipping")
			continue
		}
		r.logger.Info().
			Str("font", spec).
			Str("path", path).
			Msg("subtitle font selected")
		return path, nil
	}

	return "", fault.NoUsableFont(
		"no candidate font exists and renders the subtitle probe text")
}

// locate turns a candidate spec into a font file path, or "" when it cannot
// be found. Specs containing a path separator or a font extension are treated
// as paths; everything else is a family name looked up in the index.
func (r *Resolver) locate(spec string) string {
	if strings.ContainsAny(spec, `/\`) || hasFontExt(spec) {
		if info, err := os.Stat(spec); err == nil && !info.IsDir() {
			return spec
		}
		return ""
	}
	r.once.Do(r.buildIndex)
	return r.index[strings.ToLower(spec)]
}

func (r *Resolver) buildIndex() {
	r.index = make(map[string]string)

	dirs := r.SearchDirs
	if len(dirs) == 0 {
		dirs = platformFontDirs(r.goos)
	}

	seen := 0
	for _, dir := range dirs {
		_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !hasFontExt(path) {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			for _, name := range familyNames(data) {
				key := strings.ToLower(name)
				if _, dup := r.index[key]; !dup {
					r.index[key] = path
				}
			}
			seen++
			return nil
		})
	}
	r.logger.Debug().
		Int("files", seen).
		Int("names", len(r.index)).
		Msg("font index built")
}

func hasFontExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttf", ".otf", ".ttc":
		return true
	}
	return false
}

// familyNames extracts the family and full names from a font or collection.
func familyNames(data []byte) []string {
	coll, err := sfnt.ParseCollection(data)
	if err != nil {
		return nil
	}
	var buf sfnt.Buffer
	var names []string
	for i := 0; i < coll.NumFonts(); i++ {
		f, err := coll.Font(i)
		if err != nil {
			continue
		}
		for _, id := range []sfnt.NameID{sfnt.NameIDFamily, sfnt.NameIDFull} {
			if name, err := f.Name(&buf, id); err == nil && name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// FamilyName reads the family name recorded in a font file, for passing to
// the subtitle renderer alongside the file path.
func FamilyName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fault.Wrap(fault.KindBadInput, "fontsel.family_name", err)
	}
	coll, err := sfnt.ParseCollection(data)
	if err != nil {
		return "", fault.Wrap(fault.KindBadInput, "fontsel.family_name", err)
	}
	var buf sfnt.Buffer
	for i := 0; i < coll.NumFonts(); i++ {
		f, err := coll.Font(i)
		if err != nil {
			continue
		}
		if name, err := f.Name(&buf, sfnt.NameIDFamily); err == nil && name != "" {
			return name, nil
		}
	}
	return "", fault.BadInput("fontsel.family_name", "font carries no family name")
}

// CanRenderText reports whether any font in the file has glyphs for every
// non-space rune of text.
func CanRenderText(path, text string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	coll, err := sfnt.ParseCollection(data)
	if err != nil {
		return false
	}
	var buf sfnt.Buffer
	for i := 0; i < coll.NumFonts(); i++ {
		f, err := coll.Font(i)
		if err != nil {
			continue
		}
		if covers(f, &buf, text) {
			return true
		}
	}
	return false
}

func covers(f *sfnt.Font, buf *sfnt.Buffer, text string) bool {
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		gi, err := f.GlyphIndex(buf, r)
		if err != nil || gi == 0 {
			return false
		}
	}
	return true
}
