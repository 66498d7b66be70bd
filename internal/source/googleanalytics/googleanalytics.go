// Package googleanalytics syncs page and traffic source reports from the GA4 Data API.
package googleanalytics

import (
	"context"
	"net/http"
	"time"

	"connector-sync/internal/config"
	"connector-sync/internal/fetch"
	"connector-sync/internal/models"
	"connector-sync/internal/source"
	"connector-sync/internal/transform"
	"connector-sync/pkg/converter"
)

const (
	defaultPageSize      = 1000
	defaultRefreshMargin = time.Minute
	defaultDateRange     = "30daysAgo"

	// PropertyIDKey is read from the connection's source config.
	PropertyIDKey = "propertyId"
)

var reportMetrics = []string{"sessions", "totalUsers", "screenPageViews", "bounceRate", "averageSessionDuration"}

type Adapter struct {
	source.Base
}

func New(cfg config.SourceConfig) *Adapter {
	return &Adapter{Base: source.NewBase(models.SourceGoogleAnalytics, cfg, defaultPageSize, defaultRefreshMargin)}
}

func (a *Adapter) Resources() []source.Resource {
	return []source.Resource{
		source.NewResource(source.ResourceSpec[reportRow]{
			Name:       "pages",
			Collection: source.CollectionName(models.SourceGoogleAnalytics, "pages"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      a.runReport("pagePath", "pageTitle"),
			Transform:  transformPage,
		}),
		source.NewResource(source.ResourceSpec[reportRow]{
			Name:       "traffic_sources",
			Collection: source.CollectionName(models.SourceGoogleAnalytics, "traffic_sources"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      a.runReport("sessionSource", "sessionMedium"),
			Transform:  transformTrafficSource,
		}),
	}
}

type value struct {
	Value string `json:"value"`
}

type reportRow struct {
	DimensionValues []value `json:"dimensionValues"`
	MetricValues    []value `json:"metricValues"`
}

func (r reportRow) dimension(i int) string {
	if i < len(r.DimensionValues) {
		return r.DimensionValues[i].Value
	}
	return ""
}

func (r reportRow) metric(i int) string {
	if i < len(r.MetricValues) {
		return r.MetricValues[i].Value
	}
	return ""
}

type named struct {
	Name string `json:"name"`
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type reportRequest struct {
	DateRanges []dateRange `json:"dateRanges"`
	Dimensions []named     `json:"dimensions"`
	Metrics    []named     `json:"metrics"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

type reportResponse struct {
	Rows     []reportRow `json:"rows"`
	RowCount int         `json:"rowCount"`
}

func (a *Adapter) runReport(dimensions ...string) source.PageRequestFunc[reportRow] {
	body := reportRequest{DateRanges: []dateRange{{StartDate: defaultDateRange, EndDate: "today"}}}
	for _, d := range dimensions {
		body.Dimensions = append(body.Dimensions, named{Name: d})
	}
	for _, m := range reportMetrics {
		body.Metrics = append(body.Metrics, named{Name: m})
	}

	return func(ctx context.Context, call source.Call, req fetch.Request) (fetch.Page[reportRow], error) {
		propertyID, err := source.SourceConfigValue(call.Connection, PropertyIDKey)
		if err != nil {
			return fetch.Page[reportRow]{}, err
		}

		pageBody := body
		pageBody.Limit = req.Limit
		pageBody.Offset = req.Offset
		httpReq, err := a.NewRequest(ctx, call, http.MethodPost, "/v1beta/properties/"+propertyID+":runReport", nil, pageBody)
		if err != nil {
			return fetch.Page[reportRow]{}, err
		}

		var resp reportResponse
		if err := fetch.DoJSON(call.HTTPClient, httpReq, req.Offset, &resp); err != nil {
			return fetch.Page[reportRow]{}, err
		}
		return fetch.Page[reportRow]{
			Items: resp.Rows,
			Last:  req.Offset+len(resp.Rows) >= resp.RowCount,
		}, nil
	}
}

func metricFields(r reportRow) map[string]any {
	return map[string]any{
		"sessions":           converter.ParseInt64(r.metric(0)),
		"users":              converter.ParseInt64(r.metric(1)),
		"pageViews":          converter.ParseInt64(r.metric(2)),
		"bounceRate":         converter.ParseFloat(r.metric(3)),
		"avgSessionDuration": converter.ParseFloat(r.metric(4)),
	}
}

func transformPage(orgID string, raw reportRow, syncedAt time.Time) models.Record {
	path := raw.dimension(0)
	fields := metricFields(raw)
	fields["pagePath"] = path
	fields["pageTitle"] = raw.dimension(1)
	return transform.NewRecord(orgID, models.SourceGoogleAnalytics, transform.NaturalKey("page", path), fields, syncedAt)
}

func transformTrafficSource(orgID string, raw reportRow, syncedAt time.Time) models.Record {
	src, medium := raw.dimension(0), raw.dimension(1)
	fields := metricFields(raw)
	fields["source"] = src
	fields["medium"] = medium
	return transform.NewRecord(orgID, models.SourceGoogleAnalytics, transform.NaturalKey("traffic", src, medium), fields, syncedAt)
}
