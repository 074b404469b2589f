package ocr

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dvloznov/obr-ledger/internal/config"
)

// NewRecognizerFromConfig builds the configured engine behind a text cache.
// Redis backs the cache when an address is configured, memory otherwise.
// The returned close function releases the cache connection.
func NewRecognizerFromConfig(ctx context.Context, ocrCfg config.OCRConfig, cacheCfg config.CacheConfig) (Recognizer, func() error, error) {
	var engine Recognizer
	switch ocrCfg.Engine {
	case config.EngineGemini, "":
		g, err := NewGeminiRecognizer(ctx, ocrCfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("NewRecognizerFromConfig: %w", err)
		}
		engine = g
	case config.EngineTesseract:
		engine = NewTesseractRecognizer(ocrCfg.TesseractPath)
	default:
		return nil, nil, fmt.Errorf("NewRecognizerFromConfig: unknown ocr engine %q", ocrCfg.Engine)
	}

	if cacheCfg.RedisAddr == "" {
		return NewCachedRecognizer(engine, NewMemoryCache()), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cacheCfg.RedisAddr,
		Password: cacheCfg.RedisPassword,
		DB:       cacheCfg.RedisDB,
	})
	return NewCachedRecognizer(engine, NewRedisCache(client, cacheCfg.TTL)), client.Close, nil
}

// NewDecoderFromConfig builds a decoder that renders PDFs with the configured
// pdftoppm binary and resolution.
func NewDecoderFromConfig(ocrCfg config.OCRConfig) *ImageDecoder {
	return NewImageDecoder(WithRasterizer(NewPDFToPPM(ocrCfg.PdftoppmPath, ocrCfg.DPI)))
}
