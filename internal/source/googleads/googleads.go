// Package googleads syncs campaign and ad group performance from the Google Ads search API.
package googleads

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

	// CustomerIDKey and ManagerIDKey are read from the connection's source config.
	CustomerIDKey = "customerId"
	ManagerIDKey  = "managerCustomerId"

	campaignQuery = `SELECT campaign.id, campaign.name, campaign.status, campaign.advertising_channel_type,
metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions
FROM campaign WHERE segments.date DURING LAST_30_DAYS`
	adGroupQuery = `SELECT ad_group.id, ad_group.name, ad_group.status, campaign.id,
metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions
FROM ad_group WHERE segments.date DURING LAST_30_DAYS`
)

type Adapter struct {
	source.Base
}

func New(cfg config.SourceConfig) *Adapter {
	return &Adapter{Base: source.NewBase(models.SourceGoogleAds, cfg, defaultPageSize, defaultRefreshMargin)}
}

func (a *Adapter) Resources() []source.Resource {
	return []source.Resource{
		source.NewResource(source.ResourceSpec[row]{
			Name:       "campaigns",
			Collection: source.CollectionName(models.SourceGoogleAds, "campaigns"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      a.search(campaignQuery),
			Transform:  transformCampaign,
		}),
		source.NewResource(source.ResourceSpec[row]{
			Name:       "ad_groups",
			Collection: source.CollectionName(models.SourceGoogleAds, "ad_groups"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      a.search(adGroupQuery),
			Transform:  transformAdGroup,
		}),
	}
}

// Int64 fields are encoded as JSON strings by the API.
type metrics struct {
	Impressions string  `json:"impressions"`
	Clicks      string  `json:"clicks"`
	CostMicros  string  `json:"costMicros"`
	Conversions float64 `json:"conversions"`
}

type row struct {
	Campaign struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Status      string `json:"status"`
		ChannelType string `json:"advertisingChannelType"`
	} `json:"campaign"`
	AdGroup struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"adGroup"`
	Metrics metrics `json:"metrics"`
}

type searchRequest struct {
	Query     string `json:"query"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponse struct {
	Results       []row  `json:"results"`
	NextPageToken string `json:"nextPageToken"`
}

func (a *Adapter) search(query string) source.PageRequestFunc[row] {
	return func(ctx context.Context, call source.Call, req fetch.Request) (fetch.Page[row], error) {
		customerID, err := source.SourceConfigValue(call.Connection, CustomerIDKey)
		if err != nil {
			return fetch.Page[row]{}, err
		}

		httpReq, err := a.NewRequest(ctx, call, http.MethodPost, "/v17/customers/"+customerID+"/googleAds:search", nil, searchRequest{
			Query:     query,
			PageSize:  req.Limit,
			PageToken: req.Cursor,
		})
		if err != nil {
			return fetch.Page[row]{}, err
		}
		if managerID := call.Connection.SourceConfig[ManagerIDKey]; managerID != "" {
			httpReq.Header.Set("login-customer-id", managerID)
		}

		var body searchResponse
		if err := fetch.DoJSON(call.HTTPClient, httpReq, req.Offset, &body); err != nil {
			return fetch.Page[row]{}, err
		}
		return fetch.Page[row]{
			Items:      body.Results,
			NextCursor: body.NextPageToken,
			Last:       body.NextPageToken == "",
		}, nil
	}
}

func metricFields(m metrics) map[string]any {
	impressions := converter.ParseInt64(m.Impressions)
	clicks := converter.ParseInt64(m.Clicks)
	cost := converter.MicrosToCurrency(converter.ParseInt64(m.CostMicros))
	return map[string]any{
		"impressions": impressions,
		"clicks":      clicks,
		"cost":        cost,
		"conversions": m.Conversions,
		"ctr":         converter.Ratio(float64(clicks), float64(impressions)),
		"cpc":         converter.Ratio(cost, float64(clicks)),
	}
}

func transformCampaign(orgID string, raw row, syncedAt time.Time) models.Record {
	fields := metricFields(raw.Metrics)
	fields["name"] = raw.Campaign.Name
	fields["status"] = raw.Campaign.Status
	fields["channelType"] = raw.Campaign.ChannelType
	return transform.NewRecord(orgID, models.SourceGoogleAds, raw.Campaign.ID, fields, syncedAt)
}

func transformAdGroup(orgID string, raw row, syncedAt time.Time) models.Record {
	fields := metricFields(raw.Metrics)
	fields["name"] = raw.AdGroup.Name
	fields["status"] = raw.AdGroup.Status
	fields["campaignId"] = raw.Campaign.ID
	return transform.NewRecord(orgID, models.SourceGoogleAds, raw.AdGroup.ID, fields, syncedAt)
}
