package internal

// Option adjusts the system graph before the entry points assemble it.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig supplies a pre-built configuration instead of the default one.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
