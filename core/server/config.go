package server

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// Owner is the username acting as the local contact owner.
	// Share grants are issued on behalf of this user, and it is
	// skipped when a distribution list names it as a recipient.
	Owner string `mapstructure:"owner" default:"local"`
}

// Addr returns the listen address for the configured port.
func (c Config) Addr() string {
	return ":" + c.Port
}

// IsOwner reports whether the given username is the acting owner.
func (c Config) IsOwner(username string) bool {
	return username != "" && username == c.Owner
}
