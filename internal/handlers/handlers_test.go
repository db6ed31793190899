package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelrelay/pixelrelay/internal/pipeline"
	"github.com/pixelrelay/pixelrelay/internal/policy"
	"github.com/pixelrelay/pixelrelay/internal/transform"
)

var (
	pngFixture  = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	jpegFixture = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 64)...)
	svgFixture  = []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"><circle r="4"/></svg>`)
)

type stubTransformer struct {
	output       []byte
	calls        int
	cannotEncode []policy.Format
}

func (s *stubTransformer) CanEncode(format policy.Format) bool {
	for _, blocked := range s.cannotEncode {
		if format == blocked {
			return false
		}
	}
	return true
}

func (s *stubTransformer) Transform(ctx context.Context, input io.Reader, opts pipeline.TransformOptions) (io.ReadCloser, error) {
	s.calls++
	if _, err := io.Copy(io.Discard, input); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(s.output)), nil
}

type stubSink struct{}

func (stubSink) Store(ctx context.Context, input io.Reader, opts pipeline.SinkOptions) (pipeline.Descriptor, error) {
	n, err := io.Copy(io.Discard, input)
	if err != nil {
		return pipeline.Descriptor{}, err
	}
	return pipeline.Descriptor{
		URL:    "https://cdn.example.com/converted/id-1." + string(opts.Format),
		Bytes:  n,
		Format: opts.Format,
		ID:     "id-1",
	}, nil
}

func multipartBody(t *testing.T, file []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		fw, err := w.CreateFormFile("file", "upload.bin")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doConvert(t *testing.T, transformer pipeline.Transformer, file []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h := NewConvertHandler(slog.Default(), pipeline.New(nil, transformer, nil), "webp")
	h.Register(e)

	body, contentType := multipartBody(t, file, fields)
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestConvertPNGToWebP(t *testing.T) {
	transformer := &stubTransformer{output: []byte("webp-bytes")}
	rec := doConvert(t, transformer, pngFixture, map[string]string{"format": "webp"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `inline; filename="converted.webp"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, "webp-bytes", rec.Body.String())
}

func TestConvertDefaultsFormat(t *testing.T) {
	transformer := &stubTransformer{output: []byte("webp-bytes")}
	rec := doConvert(t, transformer, pngFixture, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get(echo.HeaderContentType))
}

func TestConvertRejectsTextUpload(t *testing.T) {
	rec := doConvert(t, &stubTransformer{}, []byte("just some plain text"), map[string]string{"format": "avif"})

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "Unsupported or invalid image signature", errorBody(t, rec))
}

func TestConvertSVGInputToRaster(t *testing.T) {
	transformer := &stubTransformer{output: []byte("png-bytes")}
	rec := doConvert(t, transformer, svgFixture, map[string]string{"format": "png"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "png-bytes", rec.Body.String())
}

func TestConvertJPEGToSVGRejected(t *testing.T) {
	transformer := &stubTransformer{}
	rec := doConvert(t, transformer, jpegFixture, map[string]string{"format": "svg"})

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "SVG output only supported for SVG inputs", errorBody(t, rec))
	assert.Zero(t, transformer.calls)
}

func TestConvertSVGPassthrough(t *testing.T) {
	transformer := &stubTransformer{output: []byte("do not use")}
	rec := doConvert(t, transformer, svgFixture, map[string]string{"format": "svg"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, svgFixture, rec.Body.Bytes(), "passthrough must be byte-faithful")
	assert.Zero(t, transformer.calls)
}

func TestConvertMissingFile(t *testing.T) {
	rec := doConvert(t, &stubTransformer{}, nil, map[string]string{"format": "webp"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", errorBody(t, rec))
}

func TestConvertUnknownFormat(t *testing.T) {
	transformer := &stubTransformer{}
	rec := doConvert(t, transformer, pngFixture, map[string]string{"format": "bogus"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "unsupported format")
	assert.Zero(t, transformer.calls, "pipeline must not run for an unknown token")
}

// realPNG encodes a small but genuine PNG so the built-in codec can decode it.
func realPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for x := range 3 {
		for y := range 3 {
			img.Set(x, y, color.RGBA{R: uint8(x * 80), G: uint8(y * 80), B: 0x40, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// A default-configured relay (built-in codec, default format webp) must
// convert a PNG upload without an explicit format selector.
func TestConvertDefaultWiringPNGToWebP(t *testing.T) {
	rec := doConvert(t, transform.New(nil), realPNG(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get(echo.HeaderContentType))
	body := rec.Body.Bytes()
	require.Greater(t, len(body), 12)
	assert.Equal(t, "RIFF", string(body[0:4]))
	assert.Equal(t, "WEBP", string(body[8:12]))
}

func TestConvertUnencodableTarget(t *testing.T) {
	transformer := &stubTransformer{cannotEncode: []policy.Format{policy.FormatAVIF}}
	rec := doConvert(t, transformer, pngFixture, map[string]string{"format": "avif"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Conversion to avif not supported", errorBody(t, rec))
	assert.Zero(t, transformer.calls)
}

func TestUploadReturnsDescriptor(t *testing.T) {
	e := echo.New()
	p := pipeline.New(nil, &stubTransformer{output: []byte("avif-bytes")}, stubSink{})
	h := NewUploadHandler(slog.Default(), p, "webp")
	h.Register(e)

	body, contentType := multipartBody(t, pngFixture, map[string]string{"format": "avif"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var desc pipeline.Descriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	assert.Equal(t, "https://cdn.example.com/converted/id-1.avif", desc.URL)
	assert.Equal(t, int64(len("avif-bytes")), desc.Bytes)
	assert.Equal(t, "id-1", desc.ID)
}

func TestPing(t *testing.T) {
	e := echo.New()
	NewPingHandler(slog.Default()).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
