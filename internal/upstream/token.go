package upstream

import "github.com/golang-jwt/jwt/v5"

// applyTokenGroupDefault inspects settings.Token, if any, and fills in
// settings.Group from its "group" claim when the caller left Group empty.
// Cryptographic identity issuance is out of scope here: the signature is
// never checked, since nothing in this package holds (or should hold) a
// verification key for an arbitrary peer broker's token. Token is an
// opaque optional string: most tokens are not JWTs at all, so a parse
// failure just means there's no group claim to default from, not an
// invalid entry. Extraction is strictly best-effort and never rejects
// settings, on the load path a stricter rule here would silently drop an
// already-persisted entry on restart.
func applyTokenGroupDefault(settings Settings) Settings {
	if settings.Token == "" || settings.Group != "" {
		return settings
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(settings.Token, claims); err != nil {
		return settings
	}

	if group, ok := claims["group"].(string); ok && group != "" {
		settings.Group = group
	}
	return settings
}
