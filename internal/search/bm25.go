// Package search implements the field-weighted Okapi BM25 index over
// symbol documents, plus the query grammar used by the search and
// query commands.
//
// One document per symbol; four fields with multiplicative weights
// (path 1.0, ident 3.0, doc 1.5, string 1.0). The index is built
// lazily from state on first query and cached on disk keyed by the
// manifest version.
package search

import (
	"encoding/gob"
	"io"
	"math"
	"sort"
	"strings"
)

// Field identifies one of the weighted document fields.
type Field int

const (
	FieldPath Field = iota
	FieldIdent
	FieldDoc
	FieldString
	numFields
)

// fieldWeights are the multiplicative field weights for scoring.
var fieldWeights = [numFields]float64{
	FieldPath:   1.0,
	FieldIdent:  3.0,
	FieldDoc:    1.5,
	FieldString: 1.0,
}

// Okapi BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// negativePenalty is subtracted from documents matching any negative
// term, effectively excluding them unless nothing else qualifies.
const negativePenalty = 1e9

// Doc is the per-symbol metadata joined back onto hits.
type Doc struct {
	Symbol    string
	Kind      string
	File      string
	StartByte int
	EndByte   int
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	Preview   string
}

// Posting records one document's term frequencies per field.
type Posting struct {
	DocID uint32
	TF    [numFields]uint32
}

// Index is the BM25 inverted index.
type Index struct {
	docs     []Doc
	postings map[string][]Posting
	lens     [][numFields]uint32
	avgLen   float64 // weighted average document length
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{postings: make(map[string][]Posting)}
}

// FieldTokens carries the tokenized fields of one document. Tokens
// must already be produced by Tokenize/PathTokens.
type FieldTokens struct {
	Path   []string
	Ident  []string
	Doc    []string
	String []string
}

// AddDocument appends one symbol document. Documents must be added in
// a deterministic order (the caller adds them sorted by file and span)
// so serialized indices are byte-identical across runs.
func (ix *Index) AddDocument(doc Doc, tokens FieldTokens) uint32 {
	docID := uint32(len(ix.docs))
	var lens [numFields]uint32

	add := func(field Field, toks []string) {
		for _, term := range toks {
			lens[field]++
			list := ix.postings[term]
			if n := len(list); n > 0 && list[n-1].DocID == docID {
				list[n-1].TF[field]++
				continue
			}
			var p Posting
			p.DocID = docID
			p.TF[field] = 1
			ix.postings[term] = append(list, p)
		}
	}
	add(FieldPath, tokens.Path)
	add(FieldIdent, tokens.Ident)
	add(FieldDoc, tokens.Doc)
	add(FieldString, tokens.String)

	ix.docs = append(ix.docs, doc)
	ix.lens = append(ix.lens, lens)
	return docID
}

// Finalize computes the collection statistics. Call once after the
// last AddDocument.
func (ix *Index) Finalize() {
	var total float64
	for _, lens := range ix.lens {
		total += weightedLen(lens)
	}
	n := float64(len(ix.docs))
	if n > 0 {
		ix.avgLen = total / n
	}
}

func weightedLen(lens [numFields]uint32) float64 {
	var sum float64
	for f := Field(0); f < numFields; f++ {
		sum += fieldWeights[f] * float64(lens[f])
	}
	return sum
}

// Len reports the number of documents.
func (ix *Index) Len() int { return len(ix.docs) }

// Doc returns document metadata by id.
func (ix *Index) Doc(id uint32) Doc { return ix.docs[id] }

// Hit is one scored document.
type Hit struct {
	DocID uint32
	Score float64
	Doc   Doc
}

// Execute runs a parsed query: scores all documents containing at
// least one positive term, penalizes negative-term matches, applies
// filters as post-conditions, and returns the top k sorted by
// descending score with ties broken by ascending document id.
func (ix *Index) Execute(q Query, topK int) []Hit {
	terms := q.PositiveTokens()
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(ix.docs))
	scores := make(map[uint32]float64)
	for _, term := range terms {
		list := ix.postings[term]
		if len(list) == 0 {
			continue
		}
		df := float64(len(list))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
		for _, p := range list {
			tf := 0.0
			for f := Field(0); f < numFields; f++ {
				tf += fieldWeights[f] * float64(p.TF[f])
			}
			norm := 1.0 - bm25B + bm25B*weightedLen(ix.lens[p.DocID])/math.Max(ix.avgLen, 1e-9)
			scores[p.DocID] += idf * tf * (bm25K1 + 1.0) / (tf + bm25K1*norm)
		}
	}

	for _, term := range q.NegativeTokens() {
		for _, p := range ix.postings[term] {
			if _, ok := scores[p.DocID]; ok {
				scores[p.DocID] -= negativePenalty
			}
		}
	}

	hits := make([]Hit, 0, len(scores))
	for docID, score := range scores {
		doc := ix.docs[docID]
		if !q.Filters.Match(doc) {
			continue
		}
		hits = append(hits, Hit{DocID: docID, Score: score, Doc: doc})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// TermPostings pairs one dictionary term with its postings list.
type TermPostings struct {
	Term     string
	Postings []Posting
}

// snapshot is the serialized form of the index. The dictionary is a
// slice sorted by term so that serializing equal indices yields
// identical bytes (map iteration order must never be observable).
type snapshot struct {
	Docs   []Doc
	Terms  []TermPostings
	Lens   [][numFields]uint32
	AvgLen float64
}

// Encode writes the index with gob; the surrounding cache layer adds
// the version header and compression.
func (ix *Index) Encode(w io.Writer) error {
	terms := make([]TermPostings, 0, len(ix.postings))
	for term, postings := range ix.postings {
		terms = append(terms, TermPostings{Term: term, Postings: postings})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Term < terms[j].Term })

	return gob.NewEncoder(w).Encode(snapshot{
		Docs:   ix.docs,
		Terms:  terms,
		Lens:   ix.lens,
		AvgLen: ix.avgLen,
	})
}

// Decode reads an index previously written by Encode.
func Decode(r io.Reader) (*Index, error) {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, err
	}
	ix := &Index{
		docs:     snap.Docs,
		postings: make(map[string][]Posting, len(snap.Terms)),
		lens:     snap.Lens,
		avgLen:   snap.AvgLen,
	}
	for _, tp := range snap.Terms {
		ix.postings[tp.Term] = tp.Postings
	}
	return ix, nil
}

// ExtOf returns the lowercase extension of a file path without the dot.
func ExtOf(file string) string {
	if dot := strings.LastIndexByte(file, '.'); dot >= 0 {
		return strings.ToLower(file[dot+1:])
	}
	return ""
}
