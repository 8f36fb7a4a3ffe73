// SPDX-License-Identifier: MIT

package subtitle

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{
			name:     "cjk terminators",
			text:     "今天天气很好。我们去公园吧！你想去吗？",
			maxChars: 25,
			want:     []string{"今天天气很好", "我们去公园吧", "你想去吗"},
		},
		{
			name:     "ascii terminators",
			text:     "Hello there! How are you? Fine.",
			maxChars: 25,
			// '.' is not a terminator, so the last piece keeps it.
			want: []string{"Hello there", "How are you", "Fine."},
		},
		{
			name:     "overlong piece splits on clauses",
			text:     "这是一个很长的句子，它包含了逗号、还有顿号，所以会被再次切分。",
			maxChars: 10,
			want:     []string{"这是一个很长的句子", "它包含了逗号", "还有顿号", "所以会被再次切分"},
		},
		{
			name:     "short piece keeps clause separators",
			text:     "一，二。",
			maxChars: 10,
			want:     []string{"一，二"},
		},
		{
			name:     "whitespace and empties dropped",
			text:     "。。 第一句 。！ ？",
			maxChars: 25,
			want:     []string{"第一句"},
		},
		{
			name:     "empty script",
			text:     "   \n\t ",
			maxChars: 25,
			want:     nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitSentences(tc.text, tc.maxChars)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("SplitSentences(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}

func TestSplitSentencesIdempotent(t *testing.T) {
	scripts := []string{
		"今天天气很好。我们去公园吧！你想去吗？",
		"这是一个很长的句子，它包含了逗号、还有顿号，所以会被再次切分。短句。",
		"没有任何分隔符的超长句子没有任何分隔符的超长句子没有任何分隔符的超长句子",
	}
	for _, script := range scripts {
		first := SplitSentences(script, 10)
		rejoined := strings.Join(first, "。")
		second := SplitSentences(rejoined, 10)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("re-split of %q diverged (-first +second):\n%s", script, diff)
		}
	}
}

func TestWrapLines(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{"fits on one line", "short text", 25, []string{"short text"}},
		{"wraps at spaces", "one two three four five six", 12, []string{"one two", "three four", "five six"}},
		{"unbreakable cjk stays whole", "没有空格的超长中文句子没有空格", 10, []string{"没有空格的超长中文句子没有空格"}},
		{"single long word", "abcdefghijklmnop", 10, []string{"abcdefghijklmnop"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := WrapLines(tc.text, tc.maxChars)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("WrapLines(%q, %d) mismatch (-want +got):\n%s", tc.text, tc.maxChars, diff)
			}
		})
	}
}

func TestNormalizePunctuation(t *testing.T) {
	got := NormalizePunctuation("你好,世界.真的吗?太好了!(注)[详]:见;下")
	want := "你好，世界。真的吗？太好了！（注）【详】：见；下"
	if got != want {
		t.Errorf("NormalizePunctuation = %q, want %q", got, want)
	}
}

func TestCleanText(t *testing.T) {
	got := CleanText("  你好,   世界.  ", false)
	if got != "你好， 世界。" {
		t.Errorf("CleanText collapse = %q", got)
	}

	got = CleanText("，，中间内容。。", true)
	if got != "中间内容" {
		t.Errorf("CleanText trim edges = %q", got)
	}

	// Without trimming the edge punctuation survives.
	got = CleanText("，中间内容。", false)
	if got != "，中间内容。" {
		t.Errorf("CleanText no trim = %q", got)
	}
}
