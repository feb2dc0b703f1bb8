package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

const (
	// DefaultTopK bounds how many evidence items one turn uses.
	DefaultTopK = 3

	// candidateCap bounds how many rows per source are scored.
	candidateCap = 200

	// expertPostQuality is the fixed source weight for generic expert posts.
	expertPostQuality = 0.8

	// DefaultTipQuality is assumed when a tip has no stored quality.
	DefaultTipQuality = 0.7

	// Evidence source labels.
	SourceExpertTip  = "assistant_tip"
	SourceExpertPost = "expert_post"
)

// RetrievedItem is one scored piece of evidence.
type RetrievedItem struct {
	Source  string
	ID      string
	Title   string
	Content string
	Score   float64
}

// scoreText is the lexical overlap score: the fraction of query tokens that
// appear as substrings of the candidate text. Deterministic; no embeddings.
func scoreText(query, text string) float64 {
	tokens := map[string]struct{}{}
	for _, token := range strings.Fields(strings.ToLower(query)) {
		tokens[token] = struct{}{}
	}
	if len(tokens) == 0 {
		return 0.0
	}

	lowered := strings.ToLower(text)
	matches := 0
	for token := range tokens {
		if strings.Contains(lowered, token) {
			matches++
		}
	}
	return float64(matches) / float64(len(tokens))
}

// RetrieverConfig describes the dependencies of the evidence retriever.
type RetrieverConfig struct {
	Database *gorm.DB
}

// Retriever ranks expert tips and posts against a query.
type Retriever struct {
	db *gorm.DB
}

// NewRetriever constructs the evidence retriever.
func NewRetriever(cfg RetrieverConfig) (*Retriever, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("assistant: database handle is required")
	}
	return &Retriever{db: cfg.Database}, nil
}

// Retrieve returns the top-k evidence items for the query, scored by lexical
// overlap weighted by source quality. Zero-score candidates are excluded.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedItem, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	var candidates []RetrievedItem

	var tips []ExpertTip
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Limit(candidateCap).
		Find(&tips).Error; err != nil {
		return nil, err
	}
	for _, tip := range tips {
		quality := tip.SourceQuality
		if quality <= 0 {
			quality = DefaultTipQuality
		}
		score := scoreText(query, tip.Title+" "+tip.Content) * quality
		if score > 0 {
			candidates = append(candidates, RetrievedItem{
				Source:  SourceExpertTip,
				ID:      tip.TipID,
				Title:   tip.Title,
				Content: tip.Content,
				Score:   score,
			})
		}
	}

	var posts []ExpertPost
	if err := r.db.WithContext(ctx).
		Limit(candidateCap).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	for _, post := range posts {
		score := scoreText(query, post.Title+" "+post.Content) * expertPostQuality
		if score > 0 {
			candidates = append(candidates, RetrievedItem{
				Source:  SourceExpertPost,
				ID:      post.PostID,
				Title:   post.Title,
				Content: post.Content,
				Score:   score,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}
