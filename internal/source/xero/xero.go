// Package xero syncs invoices and contacts from the accounting API. Amounts arrive as
// integer cents.
package xero

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
	"connector-sync/pkg/converter"
)

const (
	// The API pages in fixed blocks of 100.
	pageSize             = 100
	defaultRefreshMargin = 2 * time.Minute

	// TenantIDKey is read from the connection's source config.
	TenantIDKey = "tenantId"
)

type Adapter struct {
	source.Base
}

func New(cfg config.SourceConfig) *Adapter {
	base := source.NewBase(models.SourceXero, cfg, pageSize, defaultRefreshMargin)
	base.PageSize = pageSize
	return &Adapter{Base: base}
}

func (a *Adapter) Resources() []source.Resource {
	return []source.Resource{
		source.NewResource(source.ResourceSpec[invoice]{
			Name:       "invoices",
			Collection: source.CollectionName(models.SourceXero, "invoices"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      list(a, "Invoices", func(r invoicesResponse) []invoice { return r.Invoices }),
			Transform:  transformInvoice,
		}),
		source.NewResource(source.ResourceSpec[contact]{
			Name:       "contacts",
			Collection: source.CollectionName(models.SourceXero, "contacts"),
			PageSize:   a.PageSize,
			ItemCap:    a.Cap(0),
			Fetch:      list(a, "Contacts", func(r contactsResponse) []contact { return r.Contacts }),
			Transform:  transformContact,
		}),
	}
}

type invoice struct {
	InvoiceID      string `json:"InvoiceID"`
	InvoiceNumber  string `json:"InvoiceNumber"`
	Type           string `json:"Type"`
	Status         string `json:"Status"`
	CurrencyCode   string `json:"CurrencyCode"`
	Date           string `json:"DateString"`
	DueDate        string `json:"DueDateString"`
	SubTotalCents  int64  `json:"SubTotalCents"`
	TotalTaxCents  int64  `json:"TotalTaxCents"`
	TotalCents     int64  `json:"TotalCents"`
	AmountDueCents int64  `json:"AmountDueCents"`
	Contact        struct {
		ContactID string `json:"ContactID"`
		Name      string `json:"Name"`
	} `json:"Contact"`
}

type contact struct {
	ContactID    string `json:"ContactID"`
	Name         string `json:"Name"`
	EmailAddress string `json:"EmailAddress"`
	Status       string `json:"ContactStatus"`
	IsCustomer   bool   `json:"IsCustomer"`
	IsSupplier   bool   `json:"IsSupplier"`
	UpdatedAt    string `json:"UpdatedDateUTC"`
}

type invoicesResponse struct {
	Invoices []invoice `json:"Invoices"`
}

type contactsResponse struct {
	Contacts []contact `json:"Contacts"`
}

func list[R, T any](a *Adapter, endpoint string, items func(R) []T) source.PageRequestFunc[T] {
	return func(ctx context.Context, call source.Call, req fetch.Request) (fetch.Page[T], error) {
		tenantID, err := source.SourceConfigValue(call.Connection, TenantIDKey)
		if err != nil {
			return fetch.Page[T]{}, err
		}

		query := url.Values{}
		query.Set("page", strconv.Itoa(req.Offset/req.Limit+1))
		httpReq, err := a.NewRequest(ctx, call, http.MethodGet, "/api.xro/2.0/"+endpoint, query, nil)
		if err != nil {
			return fetch.Page[T]{}, err
		}
		httpReq.Header.Set("xero-tenant-id", tenantID)

		var body R
		if err := fetch.DoJSON(call.HTTPClient, httpReq, req.Offset, &body); err != nil {
			return fetch.Page[T]{}, err
		}
		return fetch.Page[T]{Items: items(body)}, nil
	}
}

func transformInvoice(orgID string, raw invoice, syncedAt time.Time) models.Record {
	return transform.NewRecord(orgID, models.SourceXero, raw.InvoiceID, map[string]any{
		"number":      raw.InvoiceNumber,
		"type":        raw.Type,
		"status":      raw.Status,
		"currency":    raw.CurrencyCode,
		"date":        raw.Date,
		"dueDate":     raw.DueDate,
		"contactId":   raw.Contact.ContactID,
		"contactName": raw.Contact.Name,
		"subTotal":    converter.CentsToCurrency(raw.SubTotalCents),
		"totalTax":    converter.CentsToCurrency(raw.TotalTaxCents),
		"total":       converter.CentsToCurrency(raw.TotalCents),
		"amountDue":   converter.CentsToCurrency(raw.AmountDueCents),
	}, syncedAt)
}

func transformContact(orgID string, raw contact, syncedAt time.Time) models.Record {
	return transform.NewRecord(orgID, models.SourceXero, raw.ContactID, map[string]any{
		"name":       raw.Name,
		"email":      raw.EmailAddress,
		"status":     raw.Status,
		"isCustomer": raw.IsCustomer,
		"isSupplier": raw.IsSupplier,
		"updatedAt":  raw.UpdatedAt,
	}, syncedAt)
}
