// SPDX-License-Identifier: MIT

package materials

import "strings"

const maxKeywords = 5

// keywordTable maps script words to stock-photo search terms. Order
// matters: earlier rows win when the keyword budget runs out.
var keywordTable = []struct {
	word  string
	terms []string
}{
	{"编程", []string{"coding", "programming", "computer", "technology"}},
	{"代码", []string{"code", "programming", "developer", "software"}},
	{"开发", []string{"development", "coding", "software", "programming"}},
	{"Python", []string{"python", "programming", "code", "software"}},
	{"人工智能", []string{"artificial intelligence", "ai", "machine learning", "technology"}},
	{"数据", []string{"data", "analytics", "statistics", "information"}},

	{"山", []string{"mountain", "nature", "landscape", "outdoor"}},
	{"海", []string{"ocean", "sea", "water", "beach"}},
	{"森林", []string{"forest", "tree", "nature", "woods"}},
	{"天空", []string{"sky", "cloud", "weather", "atmosphere"}},
	{"日落", []string{"sunset", "sky", "evening", "dusk"}},
	{"自然", []string{"nature", "landscape", "outdoor", "scenery"}},

	{"城市", []string{"city", "urban", "building", "street"}},
	{"建筑", []string{"architecture", "building", "structure", "construction"}},
	{"街道", []string{"street", "road", "urban", "city"}},
	{"交通", []string{"traffic", "transportation", "vehicle", "road"}},

	{"办公", []string{"office", "business", "work", "workplace"}},
	{"会议", []string{"meeting", "conference", "business", "team"}},
	{"团队", []string{"team", "collaboration", "group", "people"}},
	{"商业", []string{"business", "corporate", "professional", "commerce"}},

	{"学习", []string{"learning", "education", "study", "knowledge"}},
	{"教育", []string{"education", "school", "learning", "teaching"}},
	{"书", []string{"book", "reading", "literature", "library"}},
	{"学生", []string{"student", "education", "learning", "school"}},

	{"科技", []string{"technology", "innovation", "digital", "modern"}},
	{"创新", []string{"innovation", "creativity", "technology", "modern"}},
	{"未来", []string{"future", "futuristic", "modern", "technology"}},
	{"网络", []string{"network", "internet", "connection", "digital"}},

	{"成功", []string{"success", "achievement", "winning", "growth"}},
	{"成长", []string{"growth", "development", "progress", "improvement"}},
	{"创意", []string{"creativity", "idea", "innovation", "design"}},
	{"思考", []string{"thinking", "mind", "idea", "contemplation"}},
}

// genericKeywords cover sentences no table row matches.
var genericKeywords = []string{"abstract", "background", "design", "modern"}

// ScriptKeywords aggregates search terms across all sentences in
// first-seen order, capped at max.
func ScriptKeywords(sentences []string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sentence := range sentences {
		for _, k := range Keywords(sentence, maxKeywords) {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
			if max > 0 && len(out) == max {
				return out
			}
		}
	}
	return out
}

// Keywords extracts up to max search terms for a sentence. Each matched
// table row contributes its first two terms; duplicates keep their first
// position.
func Keywords(text string, max int) []string {
	if max <= 0 {
		max = maxKeywords
	}

	var keywords []string
	seen := make(map[string]bool)
	for _, row := range keywordTable {
		if !strings.Contains(text, row.word) {
			continue
		}
		for _, term := range row.terms[:2] {
			if !seen[term] {
				seen[term] = true
				keywords = append(keywords, term)
			}
		}
	}

	if len(keywords) == 0 {
		keywords = append(keywords, genericKeywords...)
	}
	if len(keywords) > max {
		keywords = keywords[:max]
	}
	return keywords
}
