// Package hubspot syncs CRM objects and marketing emails from HubSpot.
package hubspot

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"connector-sync/internal/config"
	"connector-sync/internal/fetch"
	"connector-sync/internal/models"
	"connector-sync/internal/source"
	"connector-sync/internal/transform"
	"connector-sync/pkg/converter"
)

const (
	defaultPageSize      = 100
	defaultRefreshMargin = 5 * time.Minute
	contactsCap          = 500
)

var (
	contactProperties = []string{"email", "firstname", "lastname", "phone", "company", "lifecyclestage", "createdate", "lastmodifieddate"}
	companyProperties = []string{"name", "domain", "industry", "annualrevenue", "numberofemployees", "createdate"}
	dealProperties    = []string{"dealname", "amount", "dealstage", "pipeline", "closedate", "createdate"}
)

type Adapter struct {
	source.Base
}

func New(cfg config.SourceConfig) *Adapter {
	return &Adapter{Base: source.NewBase(models.SourceHubSpot, cfg, defaultPageSize, defaultRefreshMargin)}
}

func (a *Adapter) Resources() []source.Resource {
	return []source.Resource{
		source.NewResource(source.ResourceSpec[crmObject]{
			Name:       "contacts",
			Collection: source.CollectionName(models.SourceHubSpot, "contacts"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(contactsCap),
			Fetch:      a.crmObjects("contacts", contactProperties),
			Transform:  transformContact,
		}),
		source.NewResource(source.ResourceSpec[crmObject]{
			Name:       "companies",
			Collection: source.CollectionName(models.SourceHubSpot, "companies"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      a.crmObjects("companies", companyProperties),
			Transform:  transformCompany,
		}),
		source.NewResource(source.ResourceSpec[crmObject]{
			Name:       "deals",
			Collection: source.CollectionName(models.SourceHubSpot, "deals"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      a.crmObjects("deals", dealProperties),
			Transform:  transformDeal,
		}),
		source.NewResource(source.ResourceSpec[emailCampaign]{
			Name:       "email_campaigns",
			Collection: source.CollectionName(models.SourceHubSpot, "email_campaigns"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      a.emailCampaigns,
			Transform:  transformEmailCampaign,
		}),
	}
}

type crmObject struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	Archived   bool              `json:"archived"`
}

type crmPage struct {
	Results []crmObject `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (a *Adapter) crmObjects(object string, properties []string) source.PageRequestFunc[crmObject] {
	return func(ctx context.Context, call source.Call, req fetch.Request) (fetch.Page[crmObject], error) {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(req.Limit))
		query.Set("properties", strings.Join(properties, ","))
		if req.Cursor != "" {
			query.Set("after", req.Cursor)
		}

		httpReq, err := a.NewRequest(ctx, call, http.MethodGet, "/crm/v3/objects/"+object, query, nil)
		if err != nil {
			return fetch.Page[crmObject]{}, err
		}

		var body crmPage
		if err := fetch.DoJSON(call.HTTPClient, httpReq, req.Offset, &body); err != nil {
			return fetch.Page[crmObject]{}, err
		}

		page := fetch.Page[crmObject]{Items: body.Results, Last: true}
		if body.Paging != nil && body.Paging.Next != nil && body.Paging.Next.After != "" {
			page.NextCursor = body.Paging.Next.After
			page.Last = false
		}
		return page, nil
	}
}

type emailCampaign struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	State       string `json:"state"`
	PublishDate int64  `json:"publishDate"`
	Stats       struct {
		Counters struct {
			Sent        int64 `json:"sent"`
			Delivered   int64 `json:"delivered"`
			Open        int64 `json:"open"`
			Click       int64 `json:"click"`
			Bounce      int64 `json:"bounce"`
			Unsubscribe int64 `json:"unsubscribed"`
		} `json:"counters"`
	} `json:"stats"`
}

type emailPage struct {
	Objects []emailCampaign `json:"objects"`
	Total   int             `json:"total"`
}

func (a *Adapter) emailCampaigns(ctx context.Context, call source.Call, req fetch.Request) (fetch.Page[emailCampaign], error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(req.Limit))
	query.Set("offset", strconv.Itoa(req.Offset))

	httpReq, err := a.NewRequest(ctx, call, http.MethodGet, "/marketing/v1/emails/with-statistics", query, nil)
	if err != nil {
		return fetch.Page[emailCampaign]{}, err
	}

	var body emailPage
	if err := fetch.DoJSON(call.HTTPClient, httpReq, req.Offset, &body); err != nil {
		return fetch.Page[emailCampaign]{}, err
	}
	return fetch.Page[emailCampaign]{
		Items: body.Objects,
		Last:  body.Total > 0 && req.Offset+len(body.Objects) >= body.Total,
	}, nil
}

func transformContact(orgID string, raw crmObject, syncedAt time.Time) models.Record {
	p := raw.Properties
	return transform.NewRecord(orgID, models.SourceHubSpot, raw.ID, map[string]any{
		"email":          p["email"],
		"firstName":      p["firstname"],
		"lastName":       p["lastname"],
		"phone":          p["phone"],
		"company":        p["company"],
		"lifecycleStage": p["lifecyclestage"],
		"createdAt":      p["createdate"],
		"updatedAt":      p["lastmodifieddate"],
	}, syncedAt)
}

func transformCompany(orgID string, raw crmObject, syncedAt time.Time) models.Record {
	p := raw.Properties
	return transform.NewRecord(orgID, models.SourceHubSpot, raw.ID, map[string]any{
		"name":          p["name"],
		"domain":        p["domain"],
		"industry":      p["industry"],
		"annualRevenue": converter.ParseFloat(p["annualrevenue"]),
		"employees":     converter.ParseInt64(p["numberofemployees"]),
		"createdAt":     p["createdate"],
	}, syncedAt)
}

func transformDeal(orgID string, raw crmObject, syncedAt time.Time) models.Record {
	p := raw.Properties
	return transform.NewRecord(orgID, models.SourceHubSpot, raw.ID, map[string]any{
		"name":      p["dealname"],
		"amount":    converter.ParseFloat(p["amount"]),
		"stage":     p["dealstage"],
		"pipeline":  p["pipeline"],
		"closeDate": p["closedate"],
		"createdAt": p["createdate"],
	}, syncedAt)
}

func transformEmailCampaign(orgID string, raw emailCampaign, syncedAt time.Time) models.Record {
	c := raw.Stats.Counters
	var publishedAt any
	if raw.PublishDate > 0 {
		publishedAt = time.UnixMilli(raw.PublishDate).UTC()
	}
	return transform.NewRecord(orgID, models.SourceHubSpot, strconv.FormatInt(raw.ID, 10), map[string]any{
		"name":         raw.Name,
		"subject":      raw.Subject,
		"state":        raw.State,
		"publishedAt":  publishedAt,
		"sent":         c.Sent,
		"delivered":    c.Delivered,
		"opens":        c.Open,
		"clicks":       c.Click,
		"bounces":      c.Bounce,
		"unsubscribes": c.Unsubscribe,
		"openRate":     converter.Ratio(float64(c.Open), float64(c.Delivered)),
		"clickRate":    converter.Ratio(float64(c.Click), float64(c.Delivered)),
	}, syncedAt)
}
