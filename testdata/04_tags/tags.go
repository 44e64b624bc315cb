package tags

// Config holds server settings.
type Config struct {
	// Host is the server host.
	//sig:Validate(required=true)
	//sig:Validate(pattern="^[a-z]+$")
	Host  string   `json:"host" default:"localhost"`
	Port  int      `json:"port,omitempty" default:"8080"`
	Debug bool     `default:"true"`
	Ratio float64  `default:"0.5"`
	Tags  []string `default:"[\"a\",\"b\"]"`
	Limit *int     `default:"nil"`
	Plain string
}

// Reload re-reads the configuration.
//
//sig:Deprecated
func (c *Config) Reload() error { return nil }

type BadDefault struct {
	Count int `default:"many"`
}

type BadDirective struct {
	//sig:Oops(
	Name string
}
