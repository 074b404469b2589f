package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/dvloznov/obr-ledger/internal/config"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// MockRasterizer is a mock implementation of Rasterizer for testing.
type MockRasterizer struct {
	RasterizeFirstPageFunc func(ctx context.Context, pdf []byte) ([]byte, error)
}

func (m *MockRasterizer) RasterizeFirstPage(ctx context.Context, pdf []byte) ([]byte, error) {
	return m.RasterizeFirstPageFunc(ctx, pdf)
}

func TestImageDecoder_Decode(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

	t.Run("pdf first page is rendered", func(t *testing.T) {
		rendered := pngBytes(t, 8, 6)
		var gotPDF []byte
		decoder := NewImageDecoder(WithRasterizer(&MockRasterizer{
			RasterizeFirstPageFunc: func(ctx context.Context, data []byte) ([]byte, error) {
				gotPDF = data
				return rendered, nil
			},
		}))

		pages, err := decoder.Decode(context.Background(), pdf)
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, pdf, gotPDF)
		assert.False(t, pages[0].IsPDF())
		assert.Equal(t, MIMETypePNG, pages[0].MIMEType)
		assert.Equal(t, rendered, pages[0].Data)
		require.NotNil(t, pages[0].Image)
		assert.Equal(t, image.Rect(0, 0, 8, 6), pages[0].Image.Bounds())

		cropped, err := Crop(pages[0], image.Rect(0, 0, 4, 3))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 4, 3), cropped.Image.Bounds())
	})

	t.Run("pdf rasterizer failure", func(t *testing.T) {
		decoder := NewImageDecoder(WithRasterizer(&MockRasterizer{
			RasterizeFirstPageFunc: func(context.Context, []byte) ([]byte, error) {
				return nil, errors.New("Syntax Error: Couldn't find trailer dictionary")
			},
		}))

		_, err := decoder.Decode(context.Background(), pdf)
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, MIMETypePDF, decodeErr.MIMEType)
		assert.ErrorContains(t, err, "trailer dictionary")
	})

	t.Run("pdf rendered to garbage", func(t *testing.T) {
		decoder := NewImageDecoder(WithRasterizer(&MockRasterizer{
			RasterizeFirstPageFunc: func(context.Context, []byte) ([]byte, error) {
				return []byte("not a png"), nil
			},
		}))

		_, err := decoder.Decode(context.Background(), pdf)
		assert.ErrorContains(t, err, "decode rendered page")
	})

	t.Run("png is decoded", func(t *testing.T) {
		pages, err := NewImageDecoder().Decode(context.Background(), pngBytes(t, 4, 3))
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, MIMETypePNG, pages[0].MIMEType)
		require.NotNil(t, pages[0].Image)
		assert.Equal(t, image.Rect(0, 0, 4, 3), pages[0].Image.Bounds())
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := NewImageDecoder().Decode(context.Background(), []byte("plain text, not a scan"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, "text/plain", decodeErr.MIMEType)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := NewImageDecoder().Decode(context.Background(), nil)
		var decodeErr *DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})

	t.Run("corrupt png", func(t *testing.T) {
		data := pngBytes(t, 4, 3)
		_, err := NewImageDecoder().Decode(context.Background(), data[:20])
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, MIMETypePNG, decodeErr.MIMEType)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewImageDecoder().Decode(ctx, pdf)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCrop(t *testing.T) {
	pages, err := NewImageDecoder().Decode(context.Background(), pngBytes(t, 10, 10))
	require.NoError(t, err)

	cropped, err := Crop(pages[0], image.Rect(2, 0, 6, 4))
	require.NoError(t, err)
	assert.Equal(t, MIMETypePNG, cropped.MIMEType)
	assert.Equal(t, image.Rect(0, 0, 4, 4), cropped.Image.Bounds())

	decoded, err := png.Decode(bytes.NewReader(cropped.Data))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(0, 0).RGBA()
	assert.Zero(t, r+g+b)

	clipped, err := Crop(pages[0], image.Rect(8, 8, 20, 20))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), clipped.Image.Bounds())

	_, err = Crop(pages[0], image.Rect(20, 20, 30, 30))
	assert.Error(t, err)

	_, err = Crop(Page{Data: []byte("%PDF"), MIMEType: MIMETypePDF}, image.Rect(0, 0, 1, 1))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPDFToPPM(t *testing.T) {
	var gotName string
	var gotArgs []string
	var gotStdin []byte
	r := NewPDFToPPM("", 0)
	r.run = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		gotName = name
		gotArgs = args
		gotStdin = stdin
		return []byte("png"), nil
	}

	out, err := r.RasterizeFirstPage(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), out)
	assert.Equal(t, "pdftoppm", gotName)
	assert.Equal(t, []string{"-png", "-f", "1", "-l", "1", "-r", "300", "-"}, gotArgs)
	assert.Equal(t, []byte("%PDF"), gotStdin)

	r = NewPDFToPPM("/usr/bin/pdftoppm", 150)
	r.run = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		assert.Equal(t, "/usr/bin/pdftoppm", name)
		assert.Contains(t, args, "150")
		return nil, nil
	}
	_, err = r.RasterizeFirstPage(context.Background(), []byte("%PDF"))
	assert.ErrorContains(t, err, "no page rendered")

	r.run = func(context.Context, string, []string, []byte) ([]byte, error) {
		return nil, errors.New("exit status 99")
	}
	_, err = r.RasterizeFirstPage(context.Background(), []byte("%PDF"))
	assert.ErrorContains(t, err, "exit status 99")
}

func TestTesseractRecognizer(t *testing.T) {
	var gotArgs []string
	var gotStdin []byte
	rec := NewTesseractRecognizer("")
	rec.run = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		assert.Equal(t, "tesseract", name)
		gotArgs = args
		gotStdin = stdin
		return []byte("Payee: ACME\n\f"), nil
	}

	page := Page{Data: []byte{1, 2, 3}, MIMEType: MIMETypePNG}
	text, err := rec.RecognizeText(context.Background(), page, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "Payee: ACME", text)
	assert.Equal(t, []string{"stdin", "stdout", "-l", "eng", "--psm", "6"}, gotArgs)
	assert.Equal(t, page.Data, gotStdin)

	_, err = rec.RecognizeText(context.Background(), Page{Data: []byte("%PDF"), MIMEType: MIMETypePDF}, "eng", ModeAuto)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	rec.run = func(context.Context, string, []string, []byte) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	_, err = rec.RecognizeText(context.Background(), page, "fil", ModeSparseText)
	assert.ErrorContains(t, err, "exit status 1")
}

type mockGenerator struct {
	GenerateFunc func(ctx context.Context, model string, contents []*genai.Content) (*genai.GenerateContentResponse, error)
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.GenerateFunc(ctx, model, contents)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestGeminiRecognizer(t *testing.T) {
	page := Page{Data: []byte("%PDF-1.4"), MIMEType: MIMETypePDF}

	gen := &mockGenerator{
		GenerateFunc: func(ctx context.Context, model string, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
			assert.Equal(t, DefaultGeminiModel, model)
			require.Len(t, contents, 1)
			require.Len(t, contents[0].Parts, 2)
			assert.Contains(t, contents[0].Parts[0].Text, `"eng"`)
			assert.Equal(t, MIMETypePDF, contents[0].Parts[1].InlineData.MIMEType)
			return textResponse("```\nPayee: ACME\nTotal: 10.00\n```"), nil
		},
	}

	text, err := newGeminiRecognizer(gen, "").RecognizeText(context.Background(), page, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "Payee: ACME\nTotal: 10.00", text)

	gen.GenerateFunc = func(context.Context, string, []*genai.Content) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("quota")
	}
	_, err = newGeminiRecognizer(gen, "custom").RecognizeText(context.Background(), page, "eng", ModeAuto)
	assert.ErrorContains(t, err, "quota")

	_, err = newGeminiRecognizer(gen, "").RecognizeText(context.Background(), Page{}, "eng", ModeAuto)
	assert.Error(t, err)
}

func TestCleanTranscript(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "  a\nb  ", want: "a\nb"},
		{name: "fenced", raw: "```text\na\nb\n```", want: "a\nb"},
		{name: "lone fence", raw: "```", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanTranscript(tt.raw))
		})
	}
}

type countingRecognizer struct {
	calls int
	text  string
	err   error
}

func (c *countingRecognizer) RecognizeText(context.Context, Page, string, Mode) (string, error) {
	c.calls++
	return c.text, c.err
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("down")
}

func (failingCache) Set(context.Context, string, string) error { return errors.New("down") }

func TestCachedRecognizer(t *testing.T) {
	page := Page{Data: []byte{1, 2, 3}, MIMEType: MIMETypePNG}

	t.Run("second call is served from cache", func(t *testing.T) {
		next := &countingRecognizer{text: "hello"}
		rec := NewCachedRecognizer(next, NewMemoryCache())

		for i := 0; i < 2; i++ {
			text, err := rec.RecognizeText(context.Background(), page, "", 0)
			require.NoError(t, err)
			assert.Equal(t, "hello", text)
		}
		assert.Equal(t, 1, next.calls)

		_, err := rec.RecognizeText(context.Background(), page, "fil", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		next := &countingRecognizer{err: errors.New("boom")}
		rec := NewCachedRecognizer(next, NewMemoryCache())

		_, err := rec.RecognizeText(context.Background(), page, "", 0)
		assert.Error(t, err)
		_, err = rec.RecognizeText(context.Background(), page, "", 0)
		assert.Error(t, err)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("cache failure does not fail recognition", func(t *testing.T) {
		next := &countingRecognizer{text: "ok"}
		text, err := NewCachedRecognizer(next, failingCache{}).RecognizeText(context.Background(), page, "", 0)
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
	})
}

func TestCacheKey(t *testing.T) {
	page := Page{Data: []byte("abc")}
	assert.Equal(t,
		"ocr:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad:eng:6",
		CacheKey(page, "eng", ModeSingleBlock))
	assert.NotEqual(t, CacheKey(page, "eng", ModeSingleBlock), CacheKey(page, "eng", ModeAuto))
}

// fakeRedis overrides the two commands RedisCache uses.
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttl  time.Duration
	err  error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.(string)
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{data: map[string]string{}}
	cache := NewRedisCache(fake, time.Hour)

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", "text"))
	assert.Equal(t, time.Hour, fake.ttl)

	text, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "text", text)

	fake.err = errors.New("connection refused")
	_, _, err = cache.Get(ctx, "k")
	assert.ErrorContains(t, err, "connection refused")
	assert.Error(t, cache.Set(ctx, "k", "v"))
}

func TestNewRecognizerFromConfig(t *testing.T) {
	t.Run("tesseract with memory cache", func(t *testing.T) {
		rec, closeFn, err := NewRecognizerFromConfig(context.Background(),
			config.OCRConfig{Engine: config.EngineTesseract, TesseractPath: "/usr/bin/tesseract"},
			config.CacheConfig{})
		require.NoError(t, err)
		defer closeFn()

		cached, ok := rec.(*CachedRecognizer)
		require.True(t, ok)
		assert.IsType(t, &TesseractRecognizer{}, cached.next)
		assert.IsType(t, &MemoryCache{}, cached.cache)
	})

	t.Run("redis cache", func(t *testing.T) {
		rec, closeFn, err := NewRecognizerFromConfig(context.Background(),
			config.OCRConfig{Engine: config.EngineTesseract},
			config.CacheConfig{RedisAddr: "localhost:6379", TTL: time.Hour})
		require.NoError(t, err)
		defer closeFn()

		cached := rec.(*CachedRecognizer)
		redisCache, ok := cached.cache.(*RedisCache)
		require.True(t, ok)
		assert.Equal(t, time.Hour, redisCache.ttl)
	})

	t.Run("unknown engine", func(t *testing.T) {
		_, _, err := NewRecognizerFromConfig(context.Background(), config.OCRConfig{Engine: "abbyy"}, config.CacheConfig{})
		assert.ErrorContains(t, err, `unknown ocr engine "abbyy"`)
	})
}
