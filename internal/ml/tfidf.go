package ml

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TFIDFVectorizer turns documents into L2-normalised TF-IDF rows over a
// vocabulary of unigrams and bigrams. The vocabulary is capped at MaxFeatures
// terms, keeping the terms with the highest corpus frequency.
type TFIDFVectorizer struct {
	MaxFeatures int

	vocabulary map[string]int
	terms      []string
	idf        []float64
}

func NewTFIDFVectorizer(maxFeatures int) *TFIDFVectorizer {
	return &TFIDFVectorizer{MaxFeatures: maxFeatures}
}

// FitTransform learns the vocabulary and idf weights from docs and returns
// their feature rows. Documents without any usable term produce a zero row.
func (v *TFIDFVectorizer) FitTransform(docs []string) *mat.Dense {
	analyzed := make([][]string, len(docs))
	corpusFreq := make(map[string]int)
	docFreq := make(map[string]int)

	for i, doc := range docs {
		terms := analyze(doc)
		analyzed[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			corpusFreq[t]++
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				docFreq[t]++
			}
		}
	}

	terms := make([]string, 0, len(corpusFreq))
	for t := range corpusFreq {
		terms = append(terms, t)
	}
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		sort.Slice(terms, func(a, b int) bool {
			fa, fb := corpusFreq[terms[a]], corpusFreq[terms[b]]
			if fa != fb {
				return fa > fb
			}
			return terms[a] < terms[b]
		})
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	v.terms = terms
	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	n := float64(len(docs))
	for i, t := range terms {
		v.vocabulary[t] = i
		// smoothed idf: ln((1+n)/(1+df)) + 1
		v.idf[i] = math.Log((1+n)/(1+float64(docFreq[t]))) + 1
	}

	return v.transform(analyzed)
}

// Vocabulary returns the learned terms in column order.
func (v *TFIDFVectorizer) Vocabulary() []string {
	return v.terms
}

func (v *TFIDFVectorizer) transform(analyzed [][]string) *mat.Dense {
	cols := len(v.terms)
	if len(analyzed) == 0 || cols == 0 {
		return nil
	}

	out := mat.NewDense(len(analyzed), cols, nil)
	row := make([]float64, cols)
	for i, terms := range analyzed {
		for j := range row {
			row[j] = 0
		}
		for _, t := range terms {
			if j, ok := v.vocabulary[t]; ok {
				row[j]++
			}
		}
		floats.Mul(row, v.idf)
		if l := floats.Norm(row, 2); l > 0 {
			floats.Scale(1/l, row)
		}
		out.SetRow(i, row)
	}
	return out
}

// analyze lower-cases and tokenises doc, drops English stop words and
// returns its unigrams followed by its bigrams.
func analyze(doc string) []string {
	doc = strings.ToLower(norm.NFKC.String(doc))

	var tokens []string
	for _, tok := range strings.FieldsFunc(doc, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len([]rune(tok)) < 2 || englishStopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}

	terms := make([]string, 0, 2*len(tokens))
	terms = append(terms, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		terms = append(terms, tokens[i]+" "+tokens[i+1])
	}
	return terms
}

var englishStopWords = func() map[string]bool {
	words := []string{
		"a", "about", "above", "across", "after", "afterwards", "again", "against", "all", "almost",
		"alone", "along", "already", "also", "although", "always", "am", "among", "amongst", "an",
		"and", "another", "any", "anyhow", "anyone", "anything", "anyway", "anywhere", "are", "around",
		"as", "at", "back", "be", "became", "because", "become", "becomes", "becoming", "been",
		"before", "beforehand", "behind", "being", "below", "beside", "besides", "between", "beyond",
		"both", "bottom", "but", "by", "can", "cannot", "could", "did", "do", "does", "done", "down",
		"due", "during", "each", "eg", "eight", "either", "eleven", "else", "elsewhere", "empty",
		"enough", "etc", "even", "ever", "every", "everyone", "everything", "everywhere", "except",
		"few", "fifteen", "fifty", "fill", "find", "first", "five", "for", "former", "formerly",
		"forty", "found", "four", "from", "front", "full", "further", "get", "give", "go", "had",
		"has", "have", "he", "hence", "her", "here", "hereafter", "hereby", "herein", "hereupon",
		"hers", "herself", "him", "himself", "his", "how", "however", "hundred", "ie", "if", "in",
		"indeed", "interest", "into", "is", "it", "its", "itself", "keep", "last", "latter",
		"latterly", "least", "less", "ltd", "made", "many", "may", "me", "meanwhile", "might",
		"mine", "more", "moreover", "most", "mostly", "move", "much", "must", "my", "myself", "name",
		"namely", "neither", "never", "nevertheless", "next", "nine", "no", "nobody", "none",
		"noone", "nor", "not", "nothing", "now", "nowhere", "of", "off", "often", "on", "once", "one",
		"only", "onto", "or", "other", "others", "otherwise", "our", "ours", "ourselves", "out",
		"over", "own", "part", "per", "perhaps", "please", "put", "rather", "re", "same", "see",
		"seem", "seemed", "seeming", "seems", "serious", "several", "she", "should", "show", "side",
		"since", "six", "sixty", "so", "some", "somehow", "someone", "something", "sometime",
		"sometimes", "somewhere", "still", "such", "take", "ten", "than", "that", "the", "their",
		"them", "themselves", "then", "thence", "there", "thereafter", "thereby", "therefore",
		"therein", "thereupon", "these", "they", "third", "this", "those", "though", "three",
		"through", "throughout", "thru", "thus", "to", "together", "too", "top", "toward", "towards",
		"twelve", "twenty", "two", "under", "until", "up", "upon", "us", "very", "via", "was", "we",
		"well", "were", "what", "whatever", "when", "whence", "whenever", "where", "whereafter",
		"whereas", "whereby", "wherein", "whereupon", "wherever", "whether", "which", "while",
		"whither", "who", "whoever", "whole", "whom", "whose", "why", "will", "with", "within",
		"without", "would", "yet", "you", "your", "yours", "yourself", "yourselves",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
