package config

import "log/slog"

const redacted = "[REDACTED]"

// Secret is a string that does not print, log or marshal its value.
type Secret string

// Reveal returns the raw value. Call it only where the value leaves the
// process, e.g. an Authorization header.
func (s Secret) Reveal() string { return string(s) }

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }
