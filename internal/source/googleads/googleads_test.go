package googleads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connector-sync/internal/config"
	"connector-sync/internal/models"
	"connector-sync/internal/source"
	"connector-sync/testutil"
)

func newFakeAPI(t *testing.T, pages int, got *[]searchRequest, headers *http.Header) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v17/customers/123/googleAds:search" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		*got = append(*got, req)
		*headers = r.Header.Clone()

		page := 0
		if req.PageToken != "" {
			page, _ = strconv.Atoi(req.PageToken)
		}
		results := make([]map[string]any, 0, req.PageSize)
		for i := 0; i < req.PageSize; i++ {
			id := strconv.Itoa(page*req.PageSize + i)
			results = append(results, map[string]any{
				"campaign": map[string]any{"id": "c" + id, "name": "Campaign " + id, "status": "ENABLED"},
				"adGroup":  map[string]any{"id": "g" + id, "name": "Group " + id, "status": "PAUSED"},
				"metrics":  map[string]any{"impressions": "1000", "clicks": "50", "costMicros": "12500000", "conversions": 2.5},
			})
		}
		body := map[string]any{"results": results}
		if page+1 < pages {
			body["nextPageToken"] = strconv.Itoa(page + 1)
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func resourceNamed(t *testing.T, a *Adapter, name string) source.Resource {
	t.Helper()
	for _, res := range a.Resources() {
		if res.Name() == name {
			return res
		}
	}
	t.Fatalf("resource %s not registered", name)
	return nil
}

func TestCampaigns(t *testing.T) {
	var requests []searchRequest
	var headers http.Header
	server := newFakeAPI(t, 2, &requests, &headers)
	adapter := New(config.SourceConfig{Name: "google_ads", BaseURL: server.URL, PageSize: 10})
	conn := testutil.NewConnection("org-1", models.SourceGoogleAds, map[string]string{
		CustomerIDKey: "123",
		ManagerIDKey:  "999",
	})

	records, err := testutil.CollectRecords(t, resourceNamed(t, adapter, "campaigns").Records(context.Background(), source.Call{
		Connection:  conn,
		AccessToken: "tok",
		HTTPClient:  adapter.HTTPClient(),
	}))

	require.NoError(t, err)
	assert.Len(t, records, 20)
	require.Len(t, requests, 2)
	assert.Empty(t, requests[0].PageToken)
	assert.Equal(t, "1", requests[1].PageToken)
	assert.Contains(t, requests[0].Query, "FROM campaign")
	assert.Equal(t, "999", headers.Get("login-customer-id"))
	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))

	rec := records[0]
	assert.Equal(t, "org-1_c0", rec.Key)
	assert.Equal(t, "Campaign 0", rec.Fields["name"])
	assert.Equal(t, int64(1000), rec.Fields["impressions"])
	assert.InDelta(t, 12.5, rec.Fields["cost"], 0.0001)
	assert.InDelta(t, 0.05, rec.Fields["ctr"], 0.0001)
	assert.InDelta(t, 0.25, rec.Fields["cpc"], 0.0001)
	assert.InDelta(t, 2.5, rec.Fields["conversions"], 0.0001)
}

func TestAdGroupsReferenceCampaign(t *testing.T) {
	var requests []searchRequest
	var headers http.Header
	server := newFakeAPI(t, 1, &requests, &headers)
	adapter := New(config.SourceConfig{Name: "google_ads", BaseURL: server.URL, PageSize: 5})
	conn := testutil.NewConnection("org-1", models.SourceGoogleAds, map[string]string{CustomerIDKey: "123"})

	records, err := testutil.CollectRecords(t, resourceNamed(t, adapter, "ad_groups").Records(context.Background(), source.Call{
		Connection: conn,
		HTTPClient: adapter.HTTPClient(),
	}))

	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Empty(t, headers.Get("login-customer-id"))
	assert.Equal(t, "org-1_g0", records[0].Key)
	assert.Equal(t, "c0", records[0].Fields["campaignId"])
	assert.Equal(t, "google_ads_ad_groups", resourceNamed(t, adapter, "ad_groups").Collection())
}

func TestMissingCustomerID(t *testing.T) {
	adapter := New(config.SourceConfig{Name: "google_ads", BaseURL: "http://127.0.0.1:1"})
	conn := testutil.NewConnection("org-1", models.SourceGoogleAds, nil)

	_, err := testutil.CollectRecords(t, resourceNamed(t, adapter, "campaigns").Records(context.Background(), source.Call{
		Connection: conn,
		HTTPClient: adapter.HTTPClient(),
	}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), CustomerIDKey)
}

func TestTransformWithoutMetrics(t *testing.T) {
	var raw row
	raw.Campaign.ID = "7"

	rec := transformCampaign("org-1", raw, time.Now())

	assert.Equal(t, "org-1_7", rec.Key)
	assert.Equal(t, int64(0), rec.Fields["clicks"])
	assert.InDelta(t, 0.0, rec.Fields["cpc"], 0.0001)
	assert.Equal(t, 0.0, rec.Fields["cost"])
}
