// SPDX-License-Identifier: MIT

package fontsel

import (
	"os"
	"path/filepath"
)

// defaultFamilies lists per-platform CJK font families tried after the
// configured candidates, plus two universal fallbacks. The probe check still
// applies to every entry.
func defaultFamilies(goos string) []string {
	var families []string
	switch goos {
	case "darwin":
		families = []string{
			"STHeiti Medium",
			"Heiti SC",
			"PingFang SC",
			"Hiragino Sans GB",
			"STSong",
			"Songti SC",
		}
	case "windows":
		families = []string{
			"Microsoft YaHei",
			"SimHei",
			"SimSun",
			"KaiTi",
			"FangSong",
		}
	case "linux":
		families = []string{
			"WenQuanYi Micro Hei",
			"WenQuanYi Zen Hei",
			"Noto Sans CJK SC",
			"Droid Sans Fallback",
			"AR PL UMing CN",
		}
	}
	return append(families, "Arial Unicode MS", "DejaVu Sans")
}

func platformFontDirs(goos string) []string {
	home, _ := os.UserHomeDir()
	switch goos {
	case "darwin":
		return []string{
			"/System/Library/Fonts",
			"/System/Library/Fonts/Supplemental",
			"/Library/Fonts",
			filepath.Join(home, "Library", "Fonts"),
		}
	case "windows":
		windir := os.Getenv("WINDIR")
		if windir == "" {
			windir = `C:\Windows`
		}
		return []string{filepath.Join(windir, "Fonts")}
	default:
		return []string{
			"/usr/share/fonts",
			"/usr/local/share/fonts",
			filepath.Join(home, ".fonts"),
			filepath.Join(home, ".local", "share", "fonts"),
		}
	}
}
