// Package fakeplatform serves a minimal external platform over httptest: an OAuth
// token endpoint and offset paged item collections.
package fakeplatform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"connector-sync/internal/config"
	"connector-sync/internal/fetch"
	"connector-sync/internal/models"
	"connector-sync/internal/source"
	"connector-sync/internal/transform"
)

const (
	TokenPath   = "/oauth/token"
	FreshToken  = "fresh-token"
	itemsPrefix = "/items/"
)

type Platform struct {
	Server *httptest.Server

	mu          sync.Mutex
	totals      map[string]int
	failPages   map[string]int
	delay       time.Duration
	tokenStatus int
	requests    []string
	authHeaders []string
}

func New(t *testing.T) *Platform {
	t.Helper()
	p := &Platform{
		totals:    make(map[string]int),
		failPages: make(map[string]int),
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Server.Close)
	return p
}

// SetTotal sets how many items the resource collection holds.
func (p *Platform) SetTotal(resource string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals[resource] = total
}

// FailPage makes the 1-based page of resource answer 500.
func (p *Platform) FailPage(resource string, page int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failPages[resource] = page
}

// SetDelay slows every item page down.
func (p *Platform) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// RejectRefresh makes the token endpoint answer with status.
func (p *Platform) RejectRefresh(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = status
}

// Requests lists request paths in arrival order.
func (p *Platform) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requests...)
}

// AuthHeaders lists the Authorization headers of item page requests.
func (p *Platform) AuthHeaders() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.authHeaders...)
}

// PageRequests counts the item page requests made for resource.
func (p *Platform) PageRequests(resource string) int {
	n := 0
	for _, path := range p.Requests() {
		if path == itemsPrefix+resource {
			n++
		}
	}
	return n
}

func (p *Platform) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests = append(p.requests, r.URL.Path)
	tokenStatus := p.tokenStatus
	delay := p.delay
	p.mu.Unlock()

	if r.URL.Path == TokenPath {
		if tokenStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + FreshToken + `","token_type":"Bearer","expires_in":3600}`))
		return
	}

	resource, ok := strings.CutPrefix(r.URL.Path, itemsPrefix)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	p.mu.Lock()
	p.authHeaders = append(p.authHeaders, r.Header.Get("Authorization"))
	total := p.totals[resource]
	failPage := p.failPages[resource]
	p.mu.Unlock()

	if limit > 0 && failPage > 0 && offset/limit+1 == failPage {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
		return
	}

	items := make([]Item, 0, limit)
	for i := offset; i < offset+limit && i < total; i++ {
		items = append(items, Item{ID: strconv.Itoa(i), Name: resource + "-" + strconv.Itoa(i)})
	}
	_ = json.NewEncoder(w).Encode(itemsPage{Items: items})
}

type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type itemsPage struct {
	Items []Item `json:"items"`
}

// Adapter is a source adapter backed by the fake platform.
type Adapter struct {
	source.Base
	resources []source.Resource
}

// Adapter builds an OAuth adapter named name with one resource per entry of resources.
func (p *Platform) Adapter(name models.SourceName, pageSize int, resources ...string) *Adapter {
	a := &Adapter{Base: source.NewBase(name, config.SourceConfig{
		Name:         string(name),
		BaseURL:      p.Server.URL,
		TokenURL:     p.Server.URL + TokenPath,
		ClientID:     "client",
		ClientSecret: "secret",
	}, pageSize, 0)}

	for _, res := range resources {
		a.resources = append(a.resources, source.NewResource(source.ResourceSpec[Item]{
			Name:       res,
			Collection: source.CollectionName(name, res),
			PageSize:   pageSize,
			Fetch:      a.items(res),
			Transform: func(orgID string, raw Item, syncedAt time.Time) models.Record {
				return transform.NewRecord(orgID, name, raw.ID, map[string]any{"name": raw.Name}, syncedAt)
			},
		}))
	}
	return a
}

func (a *Adapter) Resources() []source.Resource {
	return a.resources
}

func (a *Adapter) items(resource string) source.PageRequestFunc[Item] {
	return func(ctx context.Context, call source.Call, req fetch.Request) (fetch.Page[Item], error) {
		query := url.Values{}
		query.Set("offset", strconv.Itoa(req.Offset))
		query.Set("limit", strconv.Itoa(req.Limit))
		httpReq, err := a.NewRequest(ctx, call, http.MethodGet, itemsPrefix+resource, query, nil)
		if err != nil {
			return fetch.Page[Item]{}, err
		}
		var body itemsPage
		if err := fetch.DoJSON(call.HTTPClient, httpReq, req.Offset, &body); err != nil {
			return fetch.Page[Item]{}, err
		}
		return fetch.Page[Item]{Items: body.Items}, nil
	}
}
