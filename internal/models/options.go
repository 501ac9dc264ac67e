package models

// Options enumerates the recognized review toggles. The wire format is a
// free-form key→value map; OptionsFromMap silently ignores unrecognized keys
// so older clients keep working against newer servers.
type Options struct {
	EnableAnalyzer      bool    `json:"enable_analyzer"`
	EnableSecurity      bool    `json:"enable_security"`
	EnablePerformance   bool    `json:"enable_performance"`
	EnableDocumentation bool    `json:"enable_documentation"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// DefaultOptions enables every producer with the stock confidence floor.
func DefaultOptions() Options {
	return Options{
		EnableAnalyzer:      true,
		EnableSecurity:      true,
		EnablePerformance:   true,
		EnableDocumentation: true,
		ConfidenceThreshold: 0.7,
	}
}

// OptionsFromMap applies recognized keys from a raw options map on top of the
// defaults. Unrecognized keys are ignored.
func OptionsFromMap(raw map[string]any) Options {
	opts := DefaultOptions()
	if raw == nil {
		return opts
	}
	if v, ok := boolOption(raw, "enable_analyzer"); ok {
		opts.EnableAnalyzer = v
	}
	if v, ok := boolOption(raw, "enable_security"); ok {
		opts.EnableSecurity = v
	}
	if v, ok := boolOption(raw, "enable_performance"); ok {
		opts.EnablePerformance = v
	}
	if v, ok := boolOption(raw, "enable_documentation"); ok {
		opts.EnableDocumentation = v
	}
	if v, ok := raw["confidence_threshold"]; ok {
		if f, ok := v.(float64); ok && f >= 0 && f <= 1 {
			opts.ConfidenceThreshold = f
		}
	}
	return opts
}

func boolOption(raw map[string]any, key string) (bool, bool) {
	v, ok := raw[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
