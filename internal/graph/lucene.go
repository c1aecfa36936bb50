package graph

import "strings"

// luceneSpecial lists characters with meaning in Lucene query syntax.
const luceneSpecial = `+-&|!(){}[]^"~*?:\/`

// maxLuceneTerms bounds the OR query sent to the full-text index.
const maxLuceneTerms = 32

// luceneQuery turns free text into an OR of escaped terms. It returns "" if
// nothing searchable remains. Terms are lower-cased, so AND/OR/NOT in the
// input never act as operators.
func luceneQuery(text string) string {
	terms := lexicalTerms(text)
	if len(terms) > maxLuceneTerms {
		terms = terms[:maxLuceneTerms]
	}
	escaped := make([]string, 0, len(terms))
	for _, t := range terms {
		escaped = append(escaped, escapeLucene(t))
	}
	return strings.Join(escaped, " OR ")
}

func escapeLucene(term string) string {
	var b strings.Builder
	b.Grow(len(term))
	for _, r := range term {
		if strings.ContainsRune(luceneSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lexicalTerms splits text into lower-cased word tokens, dropping
// punctuation-only fragments and duplicates. Order is preserved.
func lexicalTerms(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '_' || r == '-' || r == '\'' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.Trim(f, "-'"))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
