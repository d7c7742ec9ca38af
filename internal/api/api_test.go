package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fileforge/internal/events"
	"fileforge/internal/jobs"
	"fileforge/internal/orchestrator"
	"fileforge/internal/storage"
	"fileforge/internal/testsupport"
)

type fixture struct {
	server *Server
	jobs   *jobs.Store
	blobs  *storage.Local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	jobStore := testsupport.MustOpenJobStore(t, cfg)
	taskStore := testsupport.MustOpenQueue(t, cfg)

	blobs, err := storage.NewLocal(cfg)
	if err != nil {
		t.Fatalf("storage.NewLocal: %v", err)
	}
	signer, err := storage.NewURLSigner(cfg)
	if err != nil {
		t.Fatalf("storage.NewURLSigner: %v", err)
	}

	orch := orchestrator.New(jobStore, taskStore, blobs, signer, nil)
	broadcaster := events.NewBroadcaster(jobStore, nil)
	t.Cleanup(broadcaster.Close)

	return &fixture{
		server: NewServer(cfg, orch, broadcaster, blobs, signer, nil),
		jobs:   jobStore,
		blobs:  blobs,
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return env
}

func uploadFile(t *testing.T, f *fixture, name string, content []byte) string {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := f.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status %d: %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	return data["fileId"].(string)
}

func submitConversion(t *testing.T, f *fixture, fileID, source, target string) string {
	t.Helper()

	payload, _ := json.Marshal(convertRequest{
		FileID:       fileID,
		SourceFormat: source,
		TargetFormat: target,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("convert status %d: %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	return data["id"].(string)
}

func TestUploadConvertStatus(t *testing.T) {
	f := newFixture(t)

	fileID := uploadFile(t, f, "clip.mp4", []byte("not really a video"))
	jobID := submitConversion(t, f, fileID, "mp4", "mp3")

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/status/"+jobID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
	data := env.Data.(map[string]any)
	job := data["job"].(map[string]any)
	if job["status"] != "pending" {
		t.Fatalf("expected pending job, got %v", job["status"])
	}
	if _, present := data["downloadUrl"]; present {
		t.Fatal("expected no download URL for pending job")
	}
}

func TestConvertRejectsInvalidPair(t *testing.T) {
	f := newFixture(t)
	fileID := uploadFile(t, f, "song.mp3", []byte("audio"))

	payload, _ := json.Marshal(convertRequest{
		FileID:       fileID,
		SourceFormat: "mp3",
		TargetFormat: "mp4",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Success || !strings.Contains(env.Error, "cannot convert") {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/status/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestFormatListing(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/formats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("formats status %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if len(env.Data.([]any)) == 0 {
		t.Fatal("expected non-empty format list")
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/formats/audio", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("formats/audio status %d", rec.Code)
	}
	env = decodeEnvelope(t, rec)
	for _, entry := range env.Data.([]any) {
		if entry.(map[string]any)["category"] != "audio" {
			t.Fatalf("unexpected category in %v", entry)
		}
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/formats/bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown category, got %d", rec.Code)
	}
}

func TestDownloadFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fileID := uploadFile(t, f, "clip.mp4", []byte("source"))
	jobID := submitConversion(t, f, fileID, "mp4", "mp3")

	// Incomplete jobs cannot be downloaded.
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/download/"+jobID, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before completion, got %d", rec.Code)
	}

	resultKey := storage.ResultKey(jobID, "mp3")
	if err := f.blobs.Put(ctx, resultKey, []byte("converted audio"), "audio/mpeg"); err != nil {
		t.Fatalf("Put result: %v", err)
	}
	if err := f.jobs.UpdateStatus(ctx, jobID, jobs.StatusProcessing, 50, "", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := f.jobs.UpdateStatus(ctx, jobID, jobs.StatusCompleted, 100, resultKey, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/download/"+jobID, nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.Contains(location, "/api/files?token=") {
		t.Fatalf("unexpected redirect target %q", location)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, location, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("file fetch status %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "converted audio" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestFilesRejectsTamperedToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/files?token=not-a-token", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubscribeStreamsTerminalSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fileID := uploadFile(t, f, "clip.mp4", []byte("source"))
	jobID := submitConversion(t, f, fileID, "mp4", "mp3")
	if err := f.jobs.UpdateStatus(ctx, jobID, jobs.StatusFailed, 0, "", "converter crashed"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	server := httptest.NewServer(f.server.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/subscribe/" + jobID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("unexpected content type %q", got)
	}

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "event: ") && eventLine == "" {
			eventLine = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(line, "data: ")
			break
		}
	}

	if eventLine != "snapshot" {
		t.Fatalf("expected snapshot event, got %q", eventLine)
	}
	var msg events.Message
	if err := json.Unmarshal([]byte(dataLine), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Status != jobs.StatusFailed || msg.Error != "converter crashed" {
		t.Fatalf("unexpected snapshot %+v", msg)
	}
}

func TestQueueAdminEndpoints(t *testing.T) {
	f := newFixture(t)

	fileID := uploadFile(t, f, "clip.mp4", []byte("source"))
	jobID := submitConversion(t, f, fileID, "mp4", "mp3")

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/queue", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("queue list status %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	tasks := data["tasks"].([]any)
	if len(tasks) != 1 || tasks[0].(map[string]any)["JobID"] != jobID {
		t.Fatalf("unexpected queue snapshot %v", data)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodPost, "/api/queue/retry", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("queue retry status %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/queue", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("queue clear status %d: %s", rec.Code, rec.Body.String())
	}
	env = decodeEnvelope(t, rec)
	if count := env.Data.(map[string]any)["count"].(float64); count != 1 {
		t.Fatalf("expected one cleared task, got %v", count)
	}
}

func TestSubscribeUnknownJob(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/subscribe/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
