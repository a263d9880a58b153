package ocr

// InputOption adjusts an Input before submission.
type InputOption func(*Input)

// NewPNGInput wraps an encoded PNG of the given size.
func NewPNGInput(id string, png []byte, width, height int, opts ...InputOption) Input {
	in := Input{
		ID:     id,
		Image:  png,
		Format: ImageFormatPNG,
		Width:  width,
		Height: height,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}

func WithLanguages(langs ...string) InputOption {
	return func(in *Input) {
		in.Languages = append([]string(nil), langs...)
	}
}

func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

func WithPageSegMode(mode int) InputOption {
	return func(in *Input) { in.PageSegMode = mode }
}

func WithWhitelist(chars string) InputOption {
	return func(in *Input) { in.Whitelist = chars }
}

// WithVariable sets one engine-specific variable.
func WithVariable(key, value string) InputOption {
	return func(in *Input) {
		if in.Variables == nil {
			in.Variables = make(map[string]string)
		}
		in.Variables[key] = value
	}
}
