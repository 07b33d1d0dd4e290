package uuid

import (
	guuid "github.com/google/uuid"
)

// Gen generates UUID.
func Gen() string {
	return guuid.NewString()
}

// Short generates a short form UUID which is used for naming daemons.
func Short() string {
	u := guuid.New()
	return u.String()[:8]
}
