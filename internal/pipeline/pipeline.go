// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package pipeline is the orchestrator (spec.md §4.G): it wires BM25,
// the vector store, the embedder, the LLM client, fusion and the answer
// cache into answer() and answerForFile(). The concurrent BM25/vector
// fan-out is grounded on Aman-CERP-amanmcp's pkg/searcher.FusionSearcher
// hybridSearch (golang.org/x/sync/errgroup, 2x-topK fetch), adapted so a
// genuine retrieval error fails the whole request rather than degrading
// silently (spec.md §7: "if either throws, the whole request fails").
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/the-hive/ragquery/internal/answercache"
	"github.com/the-hive/ragquery/internal/bm25"
	"github.com/the-hive/ragquery/internal/embedclient"
	"github.com/the-hive/ragquery/internal/fileregistry"
	"github.com/the-hive/ragquery/internal/fusion"
	"github.com/the-hive/ragquery/internal/llmclient"
	"github.com/the-hive/ragquery/internal/logger"
	"github.com/the-hive/ragquery/internal/ragerr"
	"github.com/the-hive/ragquery/internal/ragtypes"
	"github.com/the-hive/ragquery/internal/vectorstore"
)

// SearchMode selects the retrieval strategy (spec.md §4.G step 4).
type SearchMode string

const (
	ModeHybrid SearchMode = "hybrid"
	ModeVector SearchMode = "vector"
	ModeBM25   SearchMode = "bm25"
)

const (
	// DefaultTopK and DefaultMinScore apply when the caller omits them.
	DefaultTopK      = 5
	DefaultMinScore  = 0.5
	maxContextLength = 4000
)

// Options tunes a single answer() or answerForFile() call.
type Options struct {
	SearchMode  SearchMode
	TopK        int
	MinScore    float64
	Temperature float64
	MaxTokens   int
}

func (o Options) normalized() Options {
	if o.SearchMode == "" {
		o.SearchMode = ModeHybrid
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MinScore <= 0 {
		o.MinScore = DefaultMinScore
	}
	return o
}

// Pipeline is the answer orchestrator. All fields are required.
type Pipeline struct {
	BM25     *bm25.Index
	Vectors  vectorstore.VectorStore
	Embedder *embedclient.Client
	LLM      *llmclient.Client
	Files    fileregistry.Registry
	Cache    *answercache.Cache
}

// New constructs a Pipeline from its dependencies.
func New(idx *bm25.Index, vectors vectorstore.VectorStore, embedder *embedclient.Client, llm *llmclient.Client, files fileregistry.Registry, cache *answercache.Cache) *Pipeline {
	return &Pipeline{BM25: idx, Vectors: vectors, Embedder: embedder, LLM: llm, Files: files, Cache: cache}
}

// Answer runs the user-scoped hybrid/vector/bm25 pipeline (spec.md §4.G).
func (p *Pipeline) Answer(ctx context.Context, question, userID string, opts Options) (ragtypes.AnswerRecord, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ragtypes.AnswerRecord{}, ragerr.New(ragerr.InvalidInput, "question must not be empty")
	}
	opts = opts.normalized()
	if opts.SearchMode != ModeHybrid && opts.SearchMode != ModeVector && opts.SearchMode != ModeBM25 {
		return ragtypes.AnswerRecord{}, ragerr.New(ragerr.InvalidInput, fmt.Sprintf("unknown searchMode %q", opts.SearchMode))
	}

	cacheKey := answercache.Key{Question: question, UserID: userID, SearchMode: string(opts.SearchMode), TopK: opts.TopK, MinScore: opts.MinScore}
	if record, ok := p.Cache.Get(cacheKey); ok {
		record.Metadata.CacheHit = true
		logger.AuditQuery(userID, len(question), string(opts.SearchMode), true)
		return record, nil
	}

	if p.Files != nil {
		hasFiles, err := p.Files.HasFiles(ctx, userID)
		if err != nil {
			return ragtypes.AnswerRecord{}, ragerr.Wrap(ragerr.Internal, "check user file context", err)
		}
		if !hasFiles {
			logger.AuditQuery(userID, len(question), string(opts.SearchMode), false)
			return noFilesRecord(question, opts), nil
		}
	}

	results, err := p.retrieve(ctx, question, userID, opts)
	if err != nil {
		return ragtypes.AnswerRecord{}, err
	}

	record, err := p.synthesize(ctx, question, results, opts)
	if err != nil {
		return ragtypes.AnswerRecord{}, err
	}

	p.Cache.Put(cacheKey, record)
	logger.AuditQuery(userID, len(question), string(opts.SearchMode), false)
	return record, nil
}

// AnswerForFile runs the file-scoped, vector-only variant (spec.md §4.G
// "File-scoped variant"): no BM25, no fileContext short-circuit, filter
// by fileId instead of userId.
func (p *Pipeline) AnswerForFile(ctx context.Context, question, fileID string, opts Options) (ragtypes.AnswerRecord, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ragtypes.AnswerRecord{}, ragerr.New(ragerr.InvalidInput, "question must not be empty")
	}
	opts = opts.normalized()

	cacheKey := answercache.Key{Question: question, FileID: fileID, SearchMode: string(ModeVector), TopK: opts.TopK, MinScore: opts.MinScore}
	if record, ok := p.Cache.Get(cacheKey); ok {
		record.Metadata.CacheHit = true
		logger.AuditQuery("file:"+fileID, len(question), string(ModeVector), true)
		return record, nil
	}

	results, err := p.vectorSearch(ctx, question, []vectorstore.Filter{{Key: "file_id", Value: fileID}}, opts)
	if err != nil {
		return ragtypes.AnswerRecord{}, err
	}

	record, err := p.synthesize(ctx, question, results, opts)
	if err != nil {
		return ragtypes.AnswerRecord{}, err
	}

	p.Cache.Put(cacheKey, record)
	logger.AuditQuery("file:"+fileID, len(question), string(ModeVector), false)
	return record, nil
}

func noFilesRecord(question string, opts Options) ragtypes.AnswerRecord {
	return ragtypes.AnswerRecord{
		Answer: "You haven't uploaded any documents yet. Upload a file to start asking questions about it.",
		Metadata: ragtypes.AnswerMetadata{
			Question:        question,
			ChunksRetrieved: 0,
			SearchMode:      string(opts.SearchMode),
			Timestamp:       time.Now(),
			Reason:          "no_files",
		},
	}
}

func noResultsRecord(question string, opts Options) ragtypes.AnswerRecord {
	return ragtypes.AnswerRecord{
		Answer: "I don't have any relevant information in your documents to answer that question.",
		Metadata: ragtypes.AnswerMetadata{
			Question:        question,
			ChunksRetrieved: 0,
			SearchMode:      string(opts.SearchMode),
			Timestamp:       time.Now(),
			Reason:          "no_results",
		},
	}
}

// retrieve branches by searchMode (spec.md §4.G step 4).
func (p *Pipeline) retrieve(ctx context.Context, question, userID string, opts Options) ([]ragtypes.RetrievalResult, error) {
	switch opts.SearchMode {
	case ModeBM25:
		return p.BM25.Search(userID, question, opts.TopK), nil
	case ModeVector:
		return p.vectorSearch(ctx, question, []vectorstore.Filter{{Key: "user_id", Value: userID}}, opts)
	default:
		return p.hybridSearch(ctx, question, userID, opts)
	}
}

// hybridSearch issues BM25 and vector retrieval concurrently over
// 2*topK each, then fuses and applies the diversity penalty (spec.md
// §4.F, §4.G, §5: the two retrieval paths SHOULD run concurrently).
func (p *Pipeline) hybridSearch(ctx context.Context, question, userID string, opts Options) ([]ragtypes.RetrievalResult, error) {
	fetchLimit := opts.TopK * 2

	var bm25Results, vectorResults []ragtypes.RetrievalResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bm25Results = p.BM25.Search(userID, question, fetchLimit)
		return nil
	})
	g.Go(func() error {
		var err error
		vectorResults, err = p.vectorSearchUnfiltered(gctx, question, []vectorstore.Filter{{Key: "user_id", Value: userID}}, fetchLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fusion.Fuse(bm25Results, vectorResults, fusion.DefaultK, opts.TopK), nil
}

// vectorSearch embeds the query, searches, and drops results below
// minScore (spec.md §4.G step 4 "vector" branch).
func (p *Pipeline) vectorSearch(ctx context.Context, question string, filters []vectorstore.Filter, opts Options) ([]ragtypes.RetrievalResult, error) {
	results, err := p.vectorSearchUnfiltered(ctx, question, filters, opts.TopK)
	if err != nil {
		return nil, err
	}
	filtered := results[:0]
	for _, r := range results {
		if r.Score >= opts.MinScore {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func (p *Pipeline) vectorSearchUnfiltered(ctx context.Context, question string, filters []vectorstore.Filter, k int) ([]ragtypes.RetrievalResult, error) {
	queryVector, err := p.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := p.Vectors.Search(ctx, queryVector, k, filters)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.UnavailableVector, "vector search", err)
	}

	out := make([]ragtypes.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		score := hit.Score
		out = append(out, ragtypes.RetrievalResult{
			FileID:      hit.FileID,
			FileName:    hit.FileName,
			ChunkIndex:  hit.ChunkIndex,
			Text:        hit.Text,
			Score:       hit.Score,
			Source:      ragtypes.SourceVector,
			VectorScore: &score,
			Sources:     []ragtypes.Source{ragtypes.SourceVector},
		})
	}
	return out, nil
}

// synthesize assembles context (spec.md §4.G.1), calls the LLM, and
// builds the AnswerRecord.
func (p *Pipeline) synthesize(ctx context.Context, question string, results []ragtypes.RetrievalResult, opts Options) (ragtypes.AnswerRecord, error) {
	if len(results) == 0 {
		return noResultsRecord(question, opts), nil
	}

	assembled, chunksUsed, uniqueNames := assembleContext(results)

	answer, err := p.LLM.GenerateAnswer(ctx, question, assembled, llmclient.Options{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Metadata:    uniqueNameSet(uniqueNames),
	})
	if err != nil {
		return ragtypes.AnswerRecord{}, err
	}

	sources := make([]ragtypes.SourceRef, 0, len(results))
	for _, r := range results {
		sources = append(sources, ragtypes.SourceRef{
			FileName:   r.FileName,
			Score:      r.Score,
			Text:       r.Text,
			ChunkIndex: r.ChunkIndex,
			FileID:     r.FileID,
			Sources:    r.Sources,
			FusionRank: r.FusionRank,
		})
	}

	return ragtypes.AnswerRecord{
		Answer:  answer,
		Context: assembled,
		Sources: sources,
		Metadata: ragtypes.AnswerMetadata{
			Question:        question,
			ChunksRetrieved: len(results),
			ChunksUsed:      chunksUsed,
			ContextLength:   len(assembled),
			UniqueFiles:     len(uniqueNames),
			UniqueFileNames: sortedNames(uniqueNames),
			SearchMode:      string(opts.SearchMode),
			Timestamp:       time.Now(),
		},
	}, nil
}

// assembleContext formats each result as "[Source i: fileName]\ntext\n\n"
// and stops before exceeding maxContextLength (spec.md §4.G.1).
func assembleContext(results []ragtypes.RetrievalResult) (string, int, map[string]struct{}) {
	var b strings.Builder
	uniqueNames := make(map[string]struct{})
	chunksUsed := 0

	for i, r := range results {
		block := fmt.Sprintf("[Source %d: %s]\n%s\n\n", i+1, r.FileName, r.Text)
		if b.Len() > 0 && b.Len()+len(block) > maxContextLength {
			break
		}
		b.WriteString(block)
		uniqueNames[r.FileName] = struct{}{}
		chunksUsed++
	}

	return strings.TrimRight(b.String(), " \t\n\r"), chunksUsed, uniqueNames
}

func uniqueNameSet(names map[string]struct{}) map[string]string {
	out := make(map[string]string, len(names))
	for name := range names {
		out[name] = name
	}
	return out
}

func sortedNames(names map[string]struct{}) []string {
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
