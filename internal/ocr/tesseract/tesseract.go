// Package tesseract implements ocr.Engine on top of the gosseract client.
package tesseract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"part-identifier/internal/logger"
	"part-identifier/internal/ocr"

	"github.com/otiai10/gosseract/v2"
)

// dictionaryOff stops Tesseract from "correcting" part numbers into words.
var dictionaryOff = map[string]string{
	"load_system_dawg":                          "0",
	"load_freq_dawg":                            "0",
	"language_model_penalty_non_dict_word":      "0",
	"language_model_penalty_non_freq_dict_word": "0",
}

// Engine creates one gosseract client per Recognize call, so a single Engine
// can be shared by concurrent pipelines.
type Engine struct {
	clientFactory  func() *gosseract.Client
	tessdataPrefix string
	languages      []string
	logger         logger.Logger
}

type Option func(*Engine)

// WithTessdataPrefix points the engine at a trained data directory.
func WithTessdataPrefix(prefix string) Option {
	return func(e *Engine) { e.tessdataPrefix = prefix }
}

// WithDefaultLanguages is used when an Input carries no language hint.
func WithDefaultLanguages(langs ...string) Option {
	return func(e *Engine) { e.languages = append([]string(nil), langs...) }
}

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		clientFactory: gosseract.NewClient,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "tesseract" }

// Version reports the linked Tesseract library version.
func (e *Engine) Version() string {
	c := e.clientFactory()
	defer c.Close()
	return c.Version()
}

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := in.Validate(); err != nil {
		return ocr.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}

	c := e.clientFactory()
	defer c.Close()

	if err := e.configure(c, in); err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	text = ocr.NormalizeText(text)
	if in.Whitelist != "" && in.Whitelist == strings.ToUpper(in.Whitelist) {
		text = strings.ToUpper(text)
	}

	words := extractWords(c)
	res := ocr.Result{
		InputID:    in.ID,
		Text:       text,
		Words:      words,
		Confidence: ocr.MeanConfidence(words),
		Language:   firstLanguage(e.languagesFor(in)),
	}

	e.logger.Debug("tesseract", "recognized", map[string]interface{}{
		"input":      in.ID,
		"words":      len(words),
		"confidence": res.Confidence,
	})

	return res, nil
}

func (e *Engine) configure(c *gosseract.Client, in ocr.Input) error {
	if e.tessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if langs := e.languagesFor(in); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	if in.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(in.PageSegMode)); err != nil {
			return fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", strconv.Itoa(in.DPI)); err != nil {
			return fmt.Errorf("set dpi: %w", err)
		}
	}
	if in.Whitelist != "" {
		if err := c.SetWhitelist(in.Whitelist); err != nil {
			return fmt.Errorf("set whitelist: %w", err)
		}
		for k, v := range dictionaryOff {
			if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
				return fmt.Errorf("set variable %s: %w", k, err)
			}
		}
	}
	for k, v := range in.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	return nil
}

func (e *Engine) languagesFor(in ocr.Input) []string {
	if len(in.Languages) > 0 {
		return in.Languages
	}
	return e.languages
}

func extractWords(c *gosseract.Client) []ocr.Word {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	words := make([]ocr.Word, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		words = append(words, ocr.Word{
			Text: b.Word,
			Bounds: ocr.Region{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
			Confidence: b.Confidence / 100.0,
		})
	}
	return words
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}
