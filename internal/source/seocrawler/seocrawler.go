// Package seocrawler syncs crawled pages and their issues from the SEO crawler API.
// Connections carry a static API key instead of OAuth tokens.
package seocrawler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"connector-sync/internal/config"
	"connector-sync/internal/fetch"
	"connector-sync/internal/models"
	"connector-sync/internal/source"
	"connector-sync/internal/transform"
)

const (
	defaultPageSize = 100
	apiKeyHeader    = "X-API-Key"

	// ProjectIDKey is read from the connection's source config.
	ProjectIDKey = "projectId"
)

type Adapter struct {
	source.Base
}

func New(cfg config.SourceConfig) *Adapter {
	base := source.NewBase(models.SourceSEOCrawler, cfg, defaultPageSize, 0)
	base.APIKeyHeader = apiKeyHeader
	return &Adapter{Base: base}
}

func (a *Adapter) Resources() []source.Resource {
	return []source.Resource{
		source.NewResource(source.ResourceSpec[page]{
			Name:       "pages",
			Collection: source.CollectionName(models.SourceSEOCrawler, "pages"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      list[page](a, "pages"),
			Transform:  transformPage,
		}),
		source.NewResource(source.ResourceSpec[issue]{
			Name:       "issues",
			Collection: source.CollectionName(models.SourceSEOCrawler, "issues"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      list[issue](a, "issues"),
			Transform:  transformIssue,
		}),
	}
}

type page struct {
	URL          string `json:"url"`
	StatusCode   int    `json:"statusCode"`
	Title        string `json:"title"`
	MetaDesc     string `json:"metaDescription"`
	WordCount    int    `json:"wordCount"`
	LoadTimeMs   int    `json:"loadTimeMs"`
	Depth        int    `json:"depth"`
	IssueCount   int    `json:"issueCount"`
	LastCrawled  string `json:"lastCrawledAt"`
	Indexability string `json:"indexability"`
}

type issue struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type listResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

func list[T any](a *Adapter, collection string) source.PageRequestFunc[T] {
	return func(ctx context.Context, call source.Call, req fetch.Request) (fetch.Page[T], error) {
		projectID, err := source.SourceConfigValue(call.Connection, ProjectIDKey)
		if err != nil {
			return fetch.Page[T]{}, err
		}

		query := url.Values{}
		query.Set("limit", strconv.Itoa(req.Limit))
		query.Set("offset", strconv.Itoa(req.Offset))
		httpReq, err := a.NewRequest(ctx, call, http.MethodGet, "/v1/projects/"+url.PathEscape(projectID)+"/"+collection, query, nil)
		if err != nil {
			return fetch.Page[T]{}, err
		}

		var body listResponse[T]
		if err := fetch.DoJSON(call.HTTPClient, httpReq, req.Offset, &body); err != nil {
			return fetch.Page[T]{}, err
		}
		return fetch.Page[T]{
			Items: body.Data,
			Last:  body.Total > 0 && req.Offset+len(body.Data) >= body.Total,
		}, nil
	}
}

func transformPage(orgID string, raw page, syncedAt time.Time) models.Record {
	return transform.NewRecord(orgID, models.SourceSEOCrawler, transform.NaturalKey(raw.URL), map[string]any{
		"url":             raw.URL,
		"statusCode":      raw.StatusCode,
		"title":           raw.Title,
		"metaDescription": raw.MetaDesc,
		"wordCount":       raw.WordCount,
		"loadTimeMs":      raw.LoadTimeMs,
		"depth":           raw.Depth,
		"issueCount":      raw.IssueCount,
		"indexability":    raw.Indexability,
		"lastCrawledAt":   raw.LastCrawled,
	}, syncedAt)
}

func transformIssue(orgID string, raw issue, syncedAt time.Time) models.Record {
	return transform.NewRecord(orgID, models.SourceSEOCrawler, transform.NaturalKey(raw.URL, raw.Type), map[string]any{
		"url":      raw.URL,
		"pageKey":  transform.DocumentKey(orgID, transform.NaturalKey(raw.URL)),
		"type":     raw.Type,
		"severity": raw.Severity,
		"message":  raw.Message,
	}, syncedAt)
}
