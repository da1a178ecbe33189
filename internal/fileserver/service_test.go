package fileserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func multipartBody(t *testing.T, preset, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("preset", preset); err != nil {
		t.Fatal(err)
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func upload(t *testing.T, svc *Service, preset, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, preset, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	svc.Upload(rr, req)
	return rr
}

func TestUploadCVAcceptsPDF(t *testing.T) {
	svc := New(t.TempDir(), 20<<20)
	rr := upload(t, svc, "cv", "resume.pdf", []byte("%PDF-1.7 test content"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" {
		t.Error("expected non-empty id")
	}
	if !strings.HasSuffix(resp.URL, ".pdf") {
		t.Errorf("URL = %q, want .pdf suffix", resp.URL)
	}
	if resp.Preset != "cv" {
		t.Errorf("Preset = %q, want cv", resp.Preset)
	}
}

func TestUploadRejectsWrongExtensionForPreset(t *testing.T) {
	svc := New(t.TempDir(), 20<<20)
	// png не подходит под пресет cv, pdf не подходит под avatar
	if rr := upload(t, svc, "cv", "pic.png", pngHeader); rr.Code != http.StatusBadRequest {
		t.Errorf("cv+png: status = %d, want 400", rr.Code)
	}
	if rr := upload(t, svc, "avatar", "doc.pdf", []byte("%PDF-1.7")); rr.Code != http.StatusBadRequest {
		t.Errorf("avatar+pdf: status = %d, want 400", rr.Code)
	}
}

func TestUploadRejectsMagicMismatch(t *testing.T) {
	svc := New(t.TempDir(), 20<<20)
	rr := upload(t, svc, "avatar", "fake.png", []byte("not a png at all, just text"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestUploadRejectsUnknownPreset(t *testing.T) {
	svc := New(t.TempDir(), 20<<20)
	rr := upload(t, svc, "archive", "a.pdf", []byte("%PDF-1.7"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestUploadThenServeRoundTrip(t *testing.T) {
	svc := New(t.TempDir(), 20<<20)
	content := append(append([]byte{}, pngHeader...), []byte("imagedata")...)
	rr := upload(t, svc, "avatar", "me.png", content)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	name := strings.TrimPrefix(resp.URL, "/api/files/")

	serveReq := httptest.NewRequest(http.MethodGet, "/files/"+name, nil)
	serveRR := httptest.NewRecorder()
	svc.Serve(serveRR, serveReq, name)
	if serveRR.Code != http.StatusOK {
		t.Fatalf("serve status = %d", serveRR.Code)
	}
	got, _ := io.ReadAll(serveRR.Body)
	if !bytes.Equal(got, content) {
		t.Errorf("served %d bytes, want original %d", len(got), len(content))
	}
	if ct := serveRR.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
}

func TestServeMissingFile(t *testing.T) {
	svc := New(t.TempDir(), 20<<20)
	req := httptest.NewRequest(http.MethodGet, "/files/nope.pdf", nil)
	rr := httptest.NewRecorder()
	svc.Serve(rr, req, "nope.pdf")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestSafeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"resume.pdf", "resume.pdf"},
		{"  spaced.pdf  ", "spaced.pdf"},
		{"bad\"quote.pdf", "badquote.pdf"},
		{"line\nbreak.pdf", "linebreak.pdf"},
		{"резюме.pdf", "резюме.pdf"},
	}
	for _, c := range cases {
		if got := safeFilename(c.in); got != c.want {
			t.Errorf("safeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
