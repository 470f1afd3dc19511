package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

type SearchClient struct {
	client *meilisearch.Client
	index  string
	logger *zap.SugaredLogger
}

func NewSearchClient(host, apiKey, index string, logger *zap.SugaredLogger) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "groups"
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &SearchClient{
		client: client,
		index:  index,
		logger: logger,
	}
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"canonical_url",
		"address",
		"area_slug",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"price_badge",
		"risk_class",
		"area_slug",
		"price_eur",
		"rooms",
		"condition",
		"tts_bucket",
		"yield_verdict",
		"trust_score",
		"member_count",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"price_eur",
		"eur_per_m2",
		"yield_net",
		"trust_score",
		"updated_at",
	})
	if err != nil {
		return err
	}

	return nil
}

// IndexGroup upserts the group's document
func (s *SearchClient) IndexGroup(doc *GroupDocument) error {
	if doc == nil {
		return nil
	}
	_, err := s.client.Index(s.index).AddDocuments([]GroupDocument{*doc}, "id")
	if err != nil {
		return fmt.Errorf("failed to index group %s: %w", doc.ID, err)
	}
	return nil
}

// IndexGroups upserts multiple documents
func (s *SearchClient) IndexGroups(docs []GroupDocument) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := s.client.Index(s.index).AddDocuments(docs, "id")
	return err
}

// DeleteGroup removes a group's document
func (s *SearchClient) DeleteGroup(groupID string) error {
	_, err := s.client.Index(s.index).DeleteDocument(groupID)
	return err
}

// SearchResult represents search results with facets
type SearchResult struct {
	Hits           []GroupDocument        `json:"hits"`
	TotalHits      int64                  `json:"total_hits"`
	Facets         map[string]interface{} `json:"facets,omitempty"`
	ProcessingTime int64                  `json:"processing_time_ms"`
}

func (s *SearchClient) search(query string, req *meilisearch.SearchRequest) (*SearchResult, error) {
	searchRes, err := s.client.Index(s.index).Search(query, req)
	if err != nil {
		return nil, err
	}

	docs := make([]GroupDocument, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		doc, err := parseHit(hit)
		if err != nil {
			s.logger.Warnw("Search: skipping malformed hit", "error", err)
			continue
		}
		docs = append(docs, doc)
	}

	var facets map[string]interface{}
	if searchRes.FacetDistribution != nil {
		facets, _ = searchRes.FacetDistribution.(map[string]interface{})
	}

	return &SearchResult{
		Hits:           docs,
		TotalHits:      searchRes.EstimatedTotalHits,
		Facets:         facets,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}

// parseHit converts a search hit to a GroupDocument
func parseHit(hit interface{}) (GroupDocument, error) {
	var doc GroupDocument
	hitJSON, err := json.Marshal(hit)
	if err != nil {
		return doc, err
	}
	err = json.Unmarshal(hitJSON, &doc)
	return doc, err
}

// GetFacets retrieves facet distribution for specified fields
func (s *SearchClient) GetFacets(facets []string) (map[string]interface{}, error) {
	res, err := s.search("", &meilisearch.SearchRequest{
		Limit:  0,
		Facets: facets,
	})
	if err != nil {
		return nil, err
	}
	if res.Facets == nil {
		return map[string]interface{}{}, nil
	}
	return res.Facets, nil
}
