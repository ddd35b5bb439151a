package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"impactboard/api/internal/store"
)

func newTestServer(dataStore *fakeStore, blobs *fakeBlobStore) *httptest.Server {
	service := newTestService(dataStore, blobs)
	return httptest.NewServer(NewHTTPServer(service, "*").Handler())
}

type multipartBody struct {
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newMultipartBody(t *testing.T, fields map[string]string) *multipartBody {
	t.Helper()
	body := &multipartBody{}
	body.writer = multipart.NewWriter(&body.buf)
	for name, value := range fields {
		if err := body.writer.WriteField(name, value); err != nil {
			t.Fatal(err)
		}
	}
	return body
}

func (b *multipartBody) attachImage(t *testing.T, filename, mimeType string, data []byte) {
	t.Helper()
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="image"; filename="` + filename + `"`}
	header["Content-Type"] = []string{mimeType}
	part, err := b.writer.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
}

func (b *multipartBody) request(t *testing.T, url string) *http.Request {
	t.Helper()
	if err := b.writer.Close(); err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, url, &b.buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", b.writer.FormDataContentType())
	return req
}

func baseFields() map[string]string {
	return map[string]string{
		"programName":    "Youth Alliance",
		"initiativeName": "Community Garden",
		"description":    "Neighborhood food production",
		"modesOfAction":  `["Serve"]`,
		"metrics":        `{"People":[{"label":"Volunteers","values":[{"value":12}]}]}`,
	}
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestAddInitiativeEndToEnd(t *testing.T) {
	var insertedMetrics []store.Metric
	dataStore := &fakeStore{
		insertMetricsFn: func(_ context.Context, rows []store.Metric) error {
			insertedMetrics = rows
			return nil
		},
	}
	blobs := &fakeBlobStore{}
	server := newTestServer(dataStore, blobs)
	defer server.Close()

	body := newMultipartBody(t, baseFields())
	body.attachImage(t, "garden.png", "image/png", []byte("fake-png"))

	resp, err := http.DefaultClient.Do(body.request(t, server.URL+"/add-initiative"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["message"] != "Initiative created successfully" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
	if len(blobs.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(blobs.uploads))
	}
	if len(insertedMetrics) != 1 || insertedMetrics[0].Value != "12" {
		t.Fatalf("numeric metric value not stored as text: %+v", insertedMetrics)
	}
}

func TestAddInitiativeMissingProgramName(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeBlobStore{})
	defer server.Close()

	fields := baseFields()
	delete(fields, "programName")
	body := newMultipartBody(t, fields)
	body.attachImage(t, "garden.png", "image/png", []byte("fake-png"))

	resp, err := http.DefaultClient.Do(body.request(t, server.URL+"/add-initiative"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code %v", payload["code"])
	}
}

func TestAddInitiativeRejectsBadImageType(t *testing.T) {
	blobs := &fakeBlobStore{}
	server := newTestServer(&fakeStore{}, blobs)
	defer server.Close()

	body := newMultipartBody(t, baseFields())
	body.attachImage(t, "garden.svg", "image/svg+xml", []byte("<svg/>"))

	resp, err := http.DefaultClient.Do(body.request(t, server.URL+"/add-initiative"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(blobs.uploads) != 0 {
		t.Fatal("rejected image must not upload")
	}
}

func TestAddInitiativeRejectsMalformedMetricsJSON(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeBlobStore{})
	defer server.Close()

	fields := baseFields()
	fields["metrics"] = `{"People": [{"label":`
	body := newMultipartBody(t, fields)
	body.attachImage(t, "garden.png", "image/png", []byte("fake-png"))

	resp, err := http.DefaultClient.Do(body.request(t, server.URL+"/add-initiative"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEditInitiativeWithoutImage(t *testing.T) {
	dataStore := &fakeStore{
		getInitiativeFn: func(context.Context, int64, string) (store.Initiative, error) {
			return store.Initiative{ID: 7, ProgramID: 1, Name: "Community Garden", ImageURL: "x"}, nil
		},
	}
	server := newTestServer(dataStore, &fakeBlobStore{})
	defer server.Close()

	body := newMultipartBody(t, baseFields())
	resp, err := http.DefaultClient.Do(body.request(t, server.URL+"/edit-initiative"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDeleteInitiativeEndpoint(t *testing.T) {
	dataStore := &fakeStore{
		getInitiativeFn: func(context.Context, int64, string) (store.Initiative, error) {
			return store.Initiative{ID: 7, ProgramID: 1, Name: "Community Garden"}, nil
		},
	}
	server := newTestServer(dataStore, &fakeBlobStore{})
	defer server.Close()

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/delete-initiative",
		strings.NewReader(`{"programName":"Youth Alliance","initiativeName":"Community Garden"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["message"] != "Initiative deleted successfully" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
}

func TestFetchScoreboardEndpoint(t *testing.T) {
	dataStore := &fakeStore{
		listInitiativesFn: func(context.Context, int64) ([]store.Initiative, error) {
			return []store.Initiative{{ID: 7, Name: "Community Garden"}}, nil
		},
		listScoreboardMetricsFn: func(context.Context, int64) ([]store.Metric, error) {
			return []store.Metric{{Label: "Volunteers", Value: "8", Category: "People"}}, nil
		},
	}
	server := newTestServer(dataStore, &fakeBlobStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/fetch-scoreboard?programName=Youth%20Alliance")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	var payload ScoreboardPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Initiatives) != 1 {
		t.Fatalf("expected 1 initiative, got %d", len(payload.Initiatives))
	}
	people := payload.Initiatives[0].Metrics[CategoryPeople]
	if len(people) != 1 || people[0].Value != 8 {
		t.Fatalf("unexpected totals %+v", people)
	}
}

func TestFetchScoreboardUnknownProgram(t *testing.T) {
	dataStore := &fakeStore{
		getProgramByNameFn: func(context.Context, string) (store.Program, error) {
			return store.Program{}, sql.ErrNoRows
		},
	}
	server := newTestServer(dataStore, &fakeBlobStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/fetch-scoreboard?programName=Nobody")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown program, got %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected code %v", payload["code"])
	}
}

func TestSetProgramPasswordEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeBlobStore{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/set-program-password", "application/json",
		strings.NewReader(`{"programId":1,"password":"garden2026"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/set-program-password", "application/json",
		strings.NewReader(`{"programId":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without password, got %d", resp.StatusCode)
	}
}

func TestProgramLoginEndpointRejectsBadPassword(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeBlobStore{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/program-login", "application/json",
		strings.NewReader(`{"programId":1,"password":"wrong"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeBlobStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	resp, err = http.Get(server.URL + "/no-such-route")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("fallback: expected 404, got %d", resp.StatusCode)
	}
}

func TestOptionsPreflight(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeBlobStore{})
	defer server.Close()

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/add-initiative", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header")
	}
}
